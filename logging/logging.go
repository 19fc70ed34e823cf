package logging

import (
	"bytes"
	"os"

	"github.com/sirupsen/logrus"
)

// OutputSplitter routes logrus output by level so cascadectl's error lines
// land on stderr (where a shell pipeline or systemd journal treats them
// as failures) while everything else — the Debug-level event.LogSink
// traffic in particular, which can be high-volume — stays on stdout.
type OutputSplitter struct{}

func (splitter *OutputSplitter) Write(p []byte) (n int, err error) {
	if bytes.Contains(p, []byte("level=error")) || bytes.Contains(p, []byte(`"level":"error"`)) {
		return os.Stderr.Write(p)
	}
	return os.Stdout.Write(p)
}

// Logger is the package-level fallback NewContextLogger uses when handed
// a nil *logrus.Logger.
var Logger = logrus.New()

func init() {
	Logger.SetOutput(&OutputSplitter{})
}
