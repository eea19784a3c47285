package discovery

import (
	"sort"
	"strconv"
	"strings"

	"powerwatch-backend/internal/reassemble"
	"powerwatch-backend/internal/record"
)

// Service is one discoverable service identity. Item is empty for checks
// without sub-entities.
type Service struct {
	Item string `json:"item,omitempty"`
	Name string `json:"name"`
}

// Entities returns the distinct entity ids present in entries, ascending.
func Entities(entries []reassemble.Entry) []int {
	seen := map[int]struct{}{}
	ids := make([]int, 0)
	for _, e := range entries {
		if _, ok := seen[e.Entity]; ok {
			continue
		}
		seen[e.Entity] = struct{}{}
		ids = append(ids, e.Entity)
	}
	sort.Ints(ids)
	return ids
}

// Group folds parallel-array entries into one record per entity, ordered by
// entity id. Metric names become field names.
func Group(check string, entries []reassemble.Entry) []record.Record {
	byEntity := map[int]*record.Builder{}
	for _, e := range entries {
		b, ok := byEntity[e.Entity]
		if !ok {
			b = record.NewBuilder(check, strconv.Itoa(e.Entity))
			byEntity[e.Entity] = b
		}
		b.Set(e.Metric, e.Value)
	}
	records := make([]record.Record, 0, len(byEntity))
	for _, id := range Entities(entries) {
		records = append(records, byEntity[id].Build())
	}
	return records
}

// Discover yields one service per distinct entity across records. An
// aggregate record (empty entity) yields the single implicit service.
func Discover(serviceName string, records []record.Record) []Service {
	seen := map[string]struct{}{}
	items := make([]string, 0, len(records))
	for _, rec := range records {
		if _, ok := seen[rec.Entity()]; ok {
			continue
		}
		seen[rec.Entity()] = struct{}{}
		items = append(items, rec.Entity())
	}
	sortItems(items)
	services := make([]Service, 0, len(items))
	for _, item := range items {
		services = append(services, Service{Item: item, Name: ServiceName(serviceName, item)})
	}
	return services
}

// ServiceName substitutes the item into a "%s" placeholder when present. An
// empty item drops the placeholder.
func ServiceName(pattern, item string) string {
	if !strings.Contains(pattern, "%s") {
		return pattern
	}
	return strings.TrimSpace(strings.Replace(pattern, "%s", item, 1))
}

// numeric items sort by value, everything else after them lexically
func sortItems(items []string) {
	sort.SliceStable(items, func(i, j int) bool {
		a, errA := strconv.Atoi(items[i])
		b, errB := strconv.Atoi(items[j])
		switch {
		case errA == nil && errB == nil:
			return a < b
		case errA == nil:
			return true
		case errB == nil:
			return false
		default:
			return items[i] < items[j]
		}
	})
}
