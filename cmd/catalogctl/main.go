// catalogctl — утилита обслуживания Catalog Module:
// преобразование библиографических записей между JSON и строковым
// форматом и управление миграциями БД.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
