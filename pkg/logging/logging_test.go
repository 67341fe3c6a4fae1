package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func TestFileLoggerAppendsToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "app.log")
	f, logger, err := FileLogger(logrus.InfoLevel, path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })

	logger.Info("hello from the transfer engine")
	logger.Debug("not written")

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(b), "hello from the transfer engine")
	require.False(t, strings.Contains(string(b), "not written"))
}

func TestConsoleLogger(t *testing.T) {
	var sb strings.Builder
	l := ConsoleLogger(logrus.WarnLevel, &sb)
	l.Info("quiet")
	l.Warn("loud")
	require.NotContains(t, sb.String(), "quiet")
	require.Contains(t, sb.String(), "loud")
}
