// Package version хранит сведения о сборке, подставляемые через -ldflags:
//
//	go build -ldflags "-X github.com/vladislavdragonenkov/bookstore/internal/version.version=v1.2.0"
package version

import "fmt"

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Build описывает конкретную сборку бинарника.
type Build struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
}

// Get возвращает сведения о текущей сборке.
func Get() Build {
	return Build{Version: version, Commit: commit, Date: date}
}

// GetVersion returns the build version.
func GetVersion() string { return version }

// GetCommit returns the build commit.
func GetCommit() string { return commit }

// Dev сообщает, что бинарник собран без подстановки версии.
func (b Build) Dev() bool { return b.Version == "dev" }

func (b Build) String() string {
	return fmt.Sprintf("version=%s commit=%s date=%s", b.Version, b.Commit, b.Date)
}

// UserAgent формирует заголовок User-Agent для исходящих запросов сервиса.
func UserAgent(product string) string {
	b := Get()
	if b.Commit == "unknown" || b.Commit == "" {
		return fmt.Sprintf("%s/%s", product, b.Version)
	}
	short := b.Commit
	if len(short) > 7 {
		short = short[:7]
	}
	return fmt.Sprintf("%s/%s (%s)", product, b.Version, short)
}
