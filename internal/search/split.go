package search

import (
	"sort"

	"boundary-map/internal/catalog"
)

// UndefinedContinent：目录中没有大洲的国家归入此分片
const UndefinedContinent = "Undefined"

// PartFile：大洲分片文件名
func PartFile(continent string) string { return "search-index-" + continent + ".json" }

// CountryPartFile：按国家再分片时的文件名（位于大洲同名目录下）
func CountryPartFile(continent, iso string) string {
	return "search-index-" + continent + "/search-index-" + iso + ".json"
}

// Split：按大洲切分索引；byCountry 中的大洲再按国家切分
// 返回清单与 文件名 → 记录
func Split(recs []Record, cat *catalog.Catalog, byCountry map[string]bool) (Manifest, map[string][]Record) {
	groups := map[string][]Record{}
	for _, r := range recs {
		cont := UndefinedContinent
		if c, err := cat.Country(r.ISO); err == nil && c.Continent != "" {
			cont = c.Continent
		}
		groups[cont] = append(groups[cont], r)
	}
	m := Manifest{Continents: make(map[string]ContinentPart, len(groups))}
	files := map[string][]Record{}
	for cont, list := range groups {
		if !byCountry[cont] {
			f := PartFile(cont)
			files[f] = list
			m.Continents[cont] = ContinentPart{Part: Part{File: f, Count: len(list)}}
			continue
		}
		byISO := map[string][]Record{}
		for _, r := range list {
			byISO[r.ISO] = append(byISO[r.ISO], r)
		}
		cp := ContinentPart{SplitByCountry: true, Countries: map[string]Part{}, TotalCount: len(list)}
		for iso, rs := range byISO {
			f := CountryPartFile(cont, iso)
			files[f] = rs
			cp.Countries[iso] = Part{File: f, Count: len(rs)}
		}
		m.Continents[cont] = cp
	}
	for _, rs := range files {
		sort.SliceStable(rs, func(i, j int) bool { return rs[i].ID < rs[j].ID })
	}
	return m, files
}
