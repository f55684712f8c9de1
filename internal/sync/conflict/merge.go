// Package conflict reconciles a local and a remote snapshot into one.
//
// Each collection has its own rule:
//
//	sales              by id, local kept only when strictly newer, newest first
//	materials          by id, local always wins
//	customPlatforms    by id, local always wins
//	goals              per year-month key, local wins
//	favoriteMaterials  union
//	customShipping     per platform key, local wins
//	records            per metric, greater value wins, ties keep local
//	settings           remote as base, keys defined locally overlay it
//
// Merge never reads the clock and never drops an id present on either side.
package conflict

import (
	"bytes"
	"encoding/json"
	"sort"

	"github.com/kimhsiao/resaletally/internal/models"
)

// Merge returns the reconciled snapshot and a report of what collided.
// Neither input is modified. A collection absent on both sides stays absent.
func Merge(local, remote *models.Snapshot) (*models.Snapshot, *Report) {
	if local == nil {
		local = &models.Snapshot{}
	}
	if remote == nil {
		remote = &models.Snapshot{}
	}

	report := &Report{}
	merged := &models.Snapshot{Version: models.SnapshotVersion}

	if local.Sales != nil || remote.Sales != nil {
		merged.Sales = mergeSales(local.Sales, remote.Sales, report)
	}
	if local.Materials != nil || remote.Materials != nil {
		merged.Materials = mergeByID(models.CollectionMaterials, local.Materials, remote.Materials,
			func(m models.Material) string { return m.ID }, report)
	}
	if local.CustomPlatforms != nil || remote.CustomPlatforms != nil {
		merged.CustomPlatforms = mergeByID(models.CollectionCustomPlatforms, local.CustomPlatforms, remote.CustomPlatforms,
			func(p models.CustomPlatform) string { return p.ID }, report)
	}
	if local.Goals != nil || remote.Goals != nil {
		merged.Goals = overlay(models.CollectionGoals, local.Goals, remote.Goals, report)
	}
	if local.CustomShipping != nil || remote.CustomShipping != nil {
		merged.CustomShipping = overlay(models.CollectionCustomShipping, local.CustomShipping, remote.CustomShipping, report)
	}
	if local.FavoriteMaterials != nil || remote.FavoriteMaterials != nil {
		merged.FavoriteMaterials = union(local.FavoriteMaterials, remote.FavoriteMaterials)
	}
	merged.Records = mergeRecords(local.Records, remote.Records, report)
	merged.Settings = mergeSettings(local.Settings, remote.Settings, report)

	return merged, report
}

// mergeSales seeds with remote and lets a local entry replace it only when
// its date is strictly newer.
func mergeSales(local, remote []models.Sale, report *Report) []models.Sale {
	byID := make(map[string]models.Sale, len(local)+len(remote))
	order := make([]string, 0, len(local)+len(remote))
	for _, s := range remote {
		if _, seen := byID[s.ID]; !seen {
			order = append(order, s.ID)
		}
		byID[s.ID] = s
	}

	localIDs := make(map[string]bool, len(local))
	for _, s := range local {
		localIDs[s.ID] = true
		existing, ok := byID[s.ID]
		if !ok {
			byID[s.ID] = s
			order = append(order, s.ID)
			report.LocalOnly++
			continue
		}
		if sameJSON(existing, s) {
			continue
		}

		winner := SideRemote
		if s.Date.After(existing.Date) {
			byID[s.ID] = s
			winner = SideLocal
		}
		report.add(Conflict{
			Collection:      models.CollectionSales,
			ItemID:          s.ID,
			Policy:          PolicyNewerTimestamp,
			Winner:          winner,
			LocalTimestamp:  s.Timestamp(),
			RemoteTimestamp: existing.Timestamp(),
		})
	}
	for _, s := range remote {
		if !localIDs[s.ID] {
			report.RemoteOnly++
		}
	}

	out := make([]models.Sale, 0, len(order))
	for _, id := range order {
		out = append(out, byID[id])
	}
	models.SortSales(out)
	return out
}

// mergeByID seeds with remote and overwrites with every local entry. Output
// keeps remote order with local-only entries appended in local order.
func mergeByID[T any](collection models.Collection, local, remote []T, id func(T) string, report *Report) []T {
	byID := make(map[string]T, len(local)+len(remote))
	order := make([]string, 0, len(local)+len(remote))
	for _, item := range remote {
		key := id(item)
		if _, seen := byID[key]; !seen {
			order = append(order, key)
		}
		byID[key] = item
	}

	localIDs := make(map[string]bool, len(local))
	for _, item := range local {
		key := id(item)
		localIDs[key] = true
		existing, ok := byID[key]
		if !ok {
			order = append(order, key)
			report.LocalOnly++
		} else if !sameJSON(existing, item) {
			report.add(Conflict{Collection: collection, ItemID: key, Policy: PolicyLocalWins, Winner: SideLocal})
		}
		byID[key] = item
	}
	for _, item := range remote {
		if !localIDs[id(item)] {
			report.RemoteOnly++
		}
	}

	out := make([]T, 0, len(order))
	for _, key := range order {
		out = append(out, byID[key])
	}
	return out
}

// overlay copies remote and lays every local key over it.
func overlay[V any, M ~map[string]V](collection models.Collection, local, remote M, report *Report) M {
	out := make(M, len(local)+len(remote))
	for k, v := range remote {
		out[k] = v
	}

	keys := make([]string, 0, len(local))
	for k := range local {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		v := local[k]
		existing, ok := out[k]
		if !ok {
			report.LocalOnly++
		} else if !sameJSON(existing, v) {
			report.add(Conflict{Collection: collection, ItemID: k, Policy: PolicyLocalWins, Winner: SideLocal})
		}
		out[k] = v
	}
	for k := range remote {
		if _, ok := local[k]; !ok {
			report.RemoteOnly++
		}
	}
	return out
}

// union keeps local order, then appends remote-only ids, without duplicates.
func union(local, remote []string) []string {
	seen := make(map[string]bool, len(local)+len(remote))
	out := make([]string, 0, len(local)+len(remote))
	for _, list := range [][]string{local, remote} {
		for _, id := range list {
			if seen[id] {
				continue
			}
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

// mergeRecords keeps the greater value per metric. Only a strictly greater
// remote value replaces the local one, carrying its year-month with it.
func mergeRecords(local, remote *models.Records, report *Report) *models.Records {
	switch {
	case local == nil && remote == nil:
		return nil
	case local == nil:
		r := *remote
		return &r
	case remote == nil:
		l := *local
		return &l
	}

	out := *local
	if remote.MaxMonthlySales.Amount.GreaterThan(local.MaxMonthlySales.Amount) {
		out.MaxMonthlySales = remote.MaxMonthlySales
		report.add(recordConflict("maxMonthlySales"))
	}
	if remote.MaxMonthlySalesCount.Count > local.MaxMonthlySalesCount.Count {
		out.MaxMonthlySalesCount = remote.MaxMonthlySalesCount
		report.add(recordConflict("maxMonthlySalesCount"))
	}
	if remote.MaxAchievementRate.Rate.GreaterThan(local.MaxAchievementRate.Rate) {
		out.MaxAchievementRate = remote.MaxAchievementRate
		report.add(recordConflict("maxAchievementRate"))
	}
	return &out
}

func recordConflict(metric string) Conflict {
	return Conflict{Collection: models.CollectionRecords, ItemID: metric, Policy: PolicyMaxValue, Winner: SideRemote}
}

// mergeSettings starts from remote and overlays every key local defines.
func mergeSettings(local, remote *models.Settings, report *Report) *models.Settings {
	switch {
	case local != nil && remote != nil:
		merged, differs, err := models.OverlaySettings(*remote, *local)
		if err != nil {
			l := *local
			merged, differs = l, !sameJSON(*local, *remote)
		}
		if differs {
			report.add(Conflict{Collection: models.CollectionSettings, Policy: PolicyLocalWins, Winner: SideLocal})
		}
		return &merged
	case local != nil:
		l := *local
		return &l
	case remote != nil:
		r := *remote
		return &r
	default:
		return nil
	}
}

// sameJSON compares two values by their JSON encoding, which normalizes
// decimal representations and raw shipping payloads.
func sameJSON(a, b interface{}) bool {
	x, errA := json.Marshal(a)
	y, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return bytes.Equal(x, y)
}
