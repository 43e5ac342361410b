package mjstream

import (
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/lmittmann/tint"
)

// InitLogger는 tint 컬러 핸들러를 애플리케이션의 기본 slog 로거로 설정합니다.
func InitLogger(config *Config) {
	slog.SetDefault(slog.New(newLogHandler(os.Stdout, config.GetSlogLevel(), false)))
}

func newLogHandler(w io.Writer, level slog.Level, noColor bool) slog.Handler {
	_, filename, _, _ := runtime.Caller(0)
	projectRoot := getProjectRoot(filename)

	// 소스 파일 경로를 프로젝트 루트 기준 상대 경로로 출력합니다.
	replaceAttr := func(groups []string, a slog.Attr) slog.Attr {
		if a.Key != slog.SourceKey {
			return a
		}
		source, ok := a.Value.Any().(*slog.Source)
		if !ok {
			return a
		}
		if projectRoot != "" && strings.HasPrefix(source.File, projectRoot+"/") {
			source.File = source.File[len(projectRoot)+1:]
		}
		return slog.Any(a.Key, source)
	}

	return tint.NewHandler(w, &tint.Options{
		Level:       level,
		AddSource:   true, // 소스 코드 정보 포함
		NoColor:     noColor,
		TimeFormat:  time.RFC3339,
		ReplaceAttr: replaceAttr,
	})
}

// getProjectRoot는 internal/mjstream/mjstream.go 경로에서 세 단계 위인 프로젝트 루트를 반환합니다.
func getProjectRoot(path string) string {
	dir := path
	for n := 0; n < 3; n++ {
		i := strings.LastIndexByte(dir, '/')
		if i < 0 {
			return ""
		}
		dir = dir[:i]
	}
	return dir
}
