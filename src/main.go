package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/robfig/cron"

	"DealPropension/src/config"
	"DealPropension/src/datasource/email"
	"DealPropension/src/datasource/file"
	"DealPropension/src/processor"
	"DealPropension/src/storage"
)

func main() {
	jsonFolder := "./config"
	jsonFile := "config.json"
	dataJsonFile := "dataconfig.json"
	cfg, dcfg, err := config.LoadConfig(jsonFolder, jsonFile, dataJsonFile)
	if err != nil {
		log.Fatal("Failed to load config: ", err)
	}

	// positional arguments restrict the run to the named models
	models, err := dcfg.Select(os.Args[1:])
	if err != nil {
		log.Fatal(err)
	}

	level, err := storage.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Fatal("Failed to parse log_level: ", err)
	}
	logger, err := storage.NewLogger(cfg.LogName)
	if err != nil {
		log.Fatal("Failed to initialize logger: ", err)
	}
	logger.SetLevel(level)

	if cfg.LogAddr != "" {
		go startWebUI(cfg.LogAddr, logger)
	}

	a := newApp(cfg, models, logger, os.Stdout)
	if cfg.Email.Enabled {
		a.mail = email.NewEmailClient(cfg.Email.Server, cfg.Email.Username, cfg.Email.Password)
	}

	serving := cfg.Schedule != "" || cfg.Watch
	if err := a.run("startup"); err != nil {
		logger.Error("run failed: " + err.Error())
		if !serving {
			logger.Close()
			os.Exit(1)
		}
	}
	if !serving {
		logger.Close()
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Schedule != "" {
		c := cron.New()
		err = c.AddFunc(cfg.Schedule, func() { a.runLogged("schedule " + cfg.Schedule) })
		if err != nil {
			logger.Error("invalid schedule: " + err.Error())
			logger.Close()
			os.Exit(1)
		}
		c.Start()
		defer c.Stop()
		logger.Info("scheduled runs: " + cfg.Schedule)
	}

	if cfg.Watch {
		monitor, err := file.NewFileMonitor(cfg.DataPath)
		if err != nil {
			logger.Error("start file monitor: " + err.Error())
			logger.Close()
			os.Exit(1)
		}
		go func() {
			if err := monitor.Watch(ctx, a.onWorkbookChange); err != nil {
				logger.Error("file monitor stopped: " + err.Error())
			}
		}()
		logger.Info("watching " + cfg.DataPath)
	}

	waitForShutdown(logger, cancel)
}

// app serialises runs coming from startup, cron and the file monitor.
type app struct {
	cfg     *config.Config
	models  []config.ModelSpec
	logger  *storage.Logger
	out     io.Writer
	mail    email.MailService
	handler *email.XLSXAttachmentHandler
	mu      sync.Mutex

	// fetchedMod is the modification time of the last workbook saved from the mailbox.
	fetchedMod time.Time
}

func newApp(cfg *config.Config, models []config.ModelSpec, logger *storage.Logger, out io.Writer) *app {
	opts := file.OptionsFromConfig(cfg.Loader)
	return &app{
		cfg:     cfg,
		models:  models,
		logger:  logger,
		out:     out,
		handler: email.NewXLSXAttachmentHandler(cfg.Email.TargetSubject, cfg.DataPath, cfg.SheetName, opts),
	}
}

// onWorkbookChange reruns the models unless the change is the workbook fetchWorkbook just saved.
func (a *app) onWorkbookChange(path string) {
	a.mu.Lock()
	info, err := os.Stat(path)
	own := err == nil && !a.fetchedMod.IsZero() && info.ModTime().Equal(a.fetchedMod)
	a.mu.Unlock()

	if own {
		a.logger.Debug("skip change of " + path + ": saved from mail")
		return
	}
	a.runLogged("change of " + path)
}

func (a *app) runLogged(trigger string) {
	if err := a.run(trigger); err != nil {
		a.logger.Error("run failed: " + err.Error())
	}
}

// run refreshes the workbook from the mailbox when one is configured, fits every model and
// mails the report.
func (a *app) run(trigger string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	t1 := time.Now()
	a.logger.Info("run triggered by " + trigger)

	if a.mail != nil {
		a.fetchWorkbook()
	}

	var report bytes.Buffer
	runner := processor.NewRunner(a.cfg, a.logger, io.MultiWriter(a.out, &report))
	_, err := runner.RunAll(a.models)

	if report.Len() > 0 {
		if err := email.SendReport(a.cfg, report.Bytes()); err != nil {
			a.logger.Error(err.Error())
		}
	}
	if err := a.logger.CheckRotate(a.cfg.LogMaxSize); err != nil {
		a.logger.Error("rotate log: " + err.Error())
	}

	a.logger.Info(fmt.Sprintf("run finished in %v", time.Since(t1)))
	return err
}

// fetchWorkbook replaces the workbook with the newest mailed one. Failures keep the current file.
func (a *app) fetchWorkbook() {
	newEmail, err := email.CheckAndProcessEmails(a.mail, a.logger, a.cfg.Email.TargetSubject, time.Duration(a.cfg.Email.CheckInterval))
	if err != nil {
		a.logger.Error("check mailbox: " + err.Error())
		return
	}
	if newEmail == nil {
		return
	}
	saved, err := a.handler.Handle(newEmail, a.logger)
	if err != nil {
		a.logger.Error(fmt.Sprintf("handle mail (UID:%d): %v", newEmail.UID, err))
		return
	}
	if saved {
		if info, err := os.Stat(a.cfg.DataPath); err == nil {
			a.fetchedMod = info.ModTime()
		}
	}
}

// logHandler streams log lines to the client until it disconnects.
func logHandler(logger *storage.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")

		logChan := logger.Subscribe()
		defer logger.Unsubscribe(logChan)
		for {
			select {
			case msg, ok := <-logChan:
				if !ok {
					return
				}
				if _, err := fmt.Fprint(w, msg); err != nil {
					return
				}
				if f, ok := w.(http.Flusher); ok {
					f.Flush()
				}
			case <-r.Context().Done():
				return
			}
		}
	}
}

func startWebUI(addr string, logger *storage.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/logs", logHandler(logger))
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("log stream: " + err.Error())
	}
}

// waitForShutdown reopens the log file on SIGHUP and exits on SIGINT/SIGTERM.
func waitForShutdown(logger *storage.Logger, cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	for sig := range sigChan {
		if sig == syscall.SIGHUP {
			if err := logger.Reopen(logger.Filename()); err != nil {
				log.Println("reopen log:", err)
			}
			continue
		}
		logger.Info("Received signal: " + sig.String() + ", shutting down...")
		cancel()
		logger.Close()
		os.Exit(0)
	}
}
