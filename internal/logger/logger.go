package logger

import (
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	log "github.com/sjqzhang/seelog"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	logConfigStr = `
<seelog type="asynctimer" asyncinterval="1000" minlevel="{LEVEL}" maxlevel="critical">
	<outputs formatid="common">
		<buffered formatid="common" size="1048576" flushperiod="1000">
			<rollingfile type="size" filename="{LOG_DIR}/tusgate.log" maxsize="104857600" maxrolls="10"/>
		</buffered>
	</outputs>
	<formats>
		<format id="common" format="%Date %Time [%LEV] [%File:%Line] [%Func] %Msg%n" />
	</formats>
</seelog>
`
	logAccessConfigStr = `
<seelog type="asynctimer" asyncinterval="1000" minlevel="trace" maxlevel="critical">
	<outputs formatid="common">
		<buffered formatid="common" size="1048576" flushperiod="1000">
			<rollingfile type="size" filename="{LOG_DIR}/access.log" maxsize="104857600" maxrolls="10"/>
		</buffered>
	</outputs>
	<formats>
		<format id="common" format="%Date %Time [%LEV] %Msg%n" />
	</formats>
</seelog>
`
)

var (
	// Access receives one line per request, see server.AccessLog.
	Access = log.Disabled
	// Uploads receives the upload lifecycle events.
	Uploads = discardLogger()
)

func discardLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

// Init replaces the global seelog logger, opens the access log and the upload
// event log below logDir.
func Init(logDir string, level string) error {
	logDir = filepath.ToSlash(logDir)
	mainConf := strings.NewReplacer("{LOG_DIR}", logDir, "{LEVEL}", seelogLevel(level)).Replace(logConfigStr)
	logger, err := log.LoggerFromConfigAsBytes([]byte(mainConf))
	if err != nil {
		return err
	}
	if err = log.ReplaceLogger(logger); err != nil {
		return err
	}

	accConf := strings.Replace(logAccessConfigStr, "{LOG_DIR}", logDir, -1)
	acc, err := log.LoggerFromConfigAsBytes([]byte(accConf))
	if err != nil {
		return err
	}
	Access = acc

	Uploads = NewUploadLogger(filepath.Join(filepath.FromSlash(logDir), "uploads.log"), level)
	return nil
}

// NewUploadLogger writes logfmt lines into a size-rotated file.
func NewUploadLogger(fileName string, level string) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(&lumberjack.Logger{
		Filename:   fileName,
		MaxSize:    100,
		MaxBackups: 10,
		MaxAge:     30,
	})
	l.SetFormatter(&logrus.TextFormatter{
		DisableColors:    true,
		FullTimestamp:    true,
		DisableSorting:   false,
		QuoteEmptyFields: true,
	})
	if lvl, err := logrus.ParseLevel(level); err == nil {
		l.SetLevel(lvl)
	}
	return l
}

// Flush drains the buffered seelog writers.
func Flush() {
	log.Flush()
	Access.Flush()
}

func seelogLevel(level string) string {
	switch strings.ToLower(level) {
	case "trace", "debug", "info", "warn", "error", "critical":
		return strings.ToLower(level)
	case "warning":
		return "warn"
	case "fatal", "panic":
		return "critical"
	}
	return "info"
}
