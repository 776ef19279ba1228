// Package version хранит сведения о сборке сервиса заказов.
package version

import "fmt"

// Значения проставляются при сборке через
// -ldflags "-X github.com/TangB5/restaurant/internal/version.version=...".
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Info возвращает версию, коммит и дату сборки по отдельности.
func Info() (v, c, d string) { return version, commit, date }

// String форматирует сведения о сборке для стартового лога и health-ответа.
func String() string {
	return fmt.Sprintf("version=%s commit=%s date=%s", version, commit, date)
}
