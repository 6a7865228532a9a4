// boundaryctl：静态数据维护工具（校验、切分搜索索引、导入内容、重建 ES 索引）
package main

import "os"

func main() {
	if err := Execute(); err != nil {
		os.Exit(1)
	}
}
