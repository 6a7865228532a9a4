// 包 fixture：测试用的小型数据集（FRA / USA 三级嵌套正方形边界）
package fixture

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"boundary-map/internal/catalog"
	"boundary-map/internal/datasource"
)

const Terminology = `{
  "FRA": {
    "name": "France",
    "continent": "Europe",
    "iso2": "FR",
    "defaultView": {"center": [2.2137, 46.2276], "zoom": 5},
    "levels": {
      "ADM0": {"term": "Country", "file": "FRA_ADM0_Country.geojson"},
      "ADM1": {"term": "Region", "file": "FRA_ADM1_Region.geojson"},
      "ADM2": {"term": "Department", "file": "FRA_ADM2_Department.geojson"}
    }
  },
  "USA": {
    "name": "United States",
    "continent": "Northern America",
    "iso2": "US",
    "defaultView": {"center": [-98.5795, 39.8283], "zoom": 4},
    "levels": {
      "ADM0": {"term": "Country", "file": "USA_ADM0_Country.geojson"},
      "ADM1": {"term": "State", "file": "USA_ADM1_State.geojson"},
      "ADM2": {"term": "County", "file": "USA_ADM2_County.geojson"}
    }
  }
}`

const Countries = `[{"iso":"FRA","name":"France","disputed":false},{"iso":"USA","name":"United States","disputed":false}]`

const Content = `{
  "FRA": {
    "ADM1": {
      "Ile-de-France": {
        "description": "Region around Paris",
        "images": ["idf-1.jpg", "idf-2.jpg"],
        "videos": ["idf.mp4"]
      }
    }
  },
  "USA": {"ADM2": {}}
}`

const SearchIndex = `{"index":[
  {"id":"FRA_ADM0_France","name":"France","type":"Country","level":"ADM0","iso":"FRA","hierarchy":["France"],"center":[5,45]},
  {"id":"FRA_ADM1_Ile-de-France","name":"Ile-de-France","type":"Region","level":"ADM1","iso":"FRA","hierarchy":["Ile-de-France","France"],"center":[2.5,45.5]},
  {"id":"FRA_ADM2_Paris","name":"Paris","type":"Department","level":"ADM2","iso":"FRA","hierarchy":["Paris","France"],"center":[2.5,45.5]},
  {"id":"USA_ADM1_Illinois","name":"Illinois","type":"State","level":"ADM1","iso":"USA","hierarchy":["Illinois","United States"],"center":[-89.5,39.5]},
  {"id":"USA_ADM2_Cook_County","name":"Cook County","type":"County","level":"ADM2","iso":"USA","hierarchy":["Cook County","United States"],"center":[-88,41.75]},
  {"id":"USA_ADM2_Cooke_County","name":"Cooke County","type":"County","level":"ADM2","iso":"USA","hierarchy":["Cooke County","United States"],"center":[-97.2,33.6]}
]}`

// Square：左下角 (x,y)、边长 s 的 geoBoundaries 风格要素
func Square(name, level, iso string, x, y, s float64) string {
	return fmt.Sprintf(`{"type":"Feature","properties":{"shapeName":%q,"shapeType":%q,"shapeGroup":%q},"geometry":{"type":"Polygon","coordinates":[[[%g,%g],[%g,%g],[%g,%g],[%g,%g],[%g,%g]]]}}`,
		name, level, iso, x, y, x+s, y, x+s, y+s, x, y+s, x, y)
}

func Collection(features ...string) string {
	return `{"type":"FeatureCollection","features":[` + strings.Join(features, ",") + `]}`
}

// Boundaries：相对路径 → GeoJSON
// FRA：France (0,40)+10 ⊃ Ile-de-France (1,44)+3 ⊃ Paris (2,45)+1
// USA：United States (-100,30)+15 ⊃ Illinois (-92,37)+5 ⊃ Cook County (-88.5,41.5)+0.5
func Boundaries() map[string]string {
	return map[string]string{
		"Europe/FRA/FRA_ADM0_Country.geojson":    Collection(Square("France", "ADM0", "FRA", 0, 40, 10)),
		"Europe/FRA/FRA_ADM1_Region.geojson":     Collection(Square("Ile-de-France", "ADM1", "FRA", 1, 44, 3), Square("Bretagne", "ADM1", "FRA", 6, 41, 2)),
		"Europe/FRA/FRA_ADM2_Department.geojson": Collection(Square("Paris", "ADM2", "FRA", 2, 45, 1)),

		"Northern America/USA/USA_ADM0_Country.geojson": Collection(Square("United States", "ADM0", "USA", -100, 30, 15)),
		"Northern America/USA/USA_ADM1_State.geojson":   Collection(Square("Illinois", "ADM1", "USA", -92, 37, 5)),
		"Northern America/USA/USA_ADM2_County.geojson":  Collection(Square("Cook County", "ADM2", "USA", -88.5, 41.5, 0.5)),
	}
}

func Catalog() *catalog.Catalog {
	c, err := catalog.Parse([]byte(Terminology), []byte(Countries))
	if err != nil {
		panic(err)
	}
	return c
}

// WriteDir：把全部文件写入目录（包括目录清单、内容与搜索索引）
func WriteDir(dir string) error {
	files := Boundaries()
	files[catalog.TerminologyFile] = Terminology
	files[catalog.CountriesFile] = Countries
	files["content.json"] = Content
	files["search-index.json"] = SearchIndex
	for name, body := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
			return err
		}
	}
	return nil
}

// Fetcher：内存 GeoJSON 来源；可注入失败路径与阻塞闸门
type Fetcher struct {
	mu    sync.Mutex
	files map[string]string
	fail  map[string]error
	gates map[string]chan struct{}
	calls map[string]int
}

func NewFetcher() *Fetcher {
	return &Fetcher{files: Boundaries(), fail: map[string]error{}, gates: map[string]chan struct{}{}, calls: map[string]int{}}
}

// Fail：该路径后续读取返回 err；err 为 nil 时恢复
func (f *Fetcher) Fail(path string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.fail, path)
		return
	}
	f.fail[path] = err
}

// Hold：阻塞该路径的读取，返回的函数放行
func (f *Fetcher) Hold(path string) (release func()) {
	ch := make(chan struct{})
	f.mu.Lock()
	f.gates[path] = ch
	f.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.gates, path)
			f.mu.Unlock()
			close(ch)
		})
	}
}

func (f *Fetcher) Calls(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[path]
}

func (f *Fetcher) Fetch(ctx context.Context, path string) ([]byte, error) {
	f.mu.Lock()
	f.calls[path]++
	gate := f.gates[path]
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail[path]; err != nil {
		return nil, err
	}
	body, ok := f.files[path]
	if !ok {
		return nil, fmt.Errorf("%s: %w", path, datasource.ErrNotFound)
	}
	return []byte(body), nil
}
