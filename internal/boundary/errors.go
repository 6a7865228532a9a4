package boundary

import "fmt"

// FetchError：数据集获取或解析失败
type FetchError struct {
	Key  Key
	Path string
	Err  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch boundary %s (%s): %v", e.Key, e.Path, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }
