package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/sevlyar/go-daemon"

	"focustimer/internal/app"
	"focustimer/internal/config"
)

var (
	configPath = flag.String("c", "", "Path to configuration file (e.g., config.yaml). Defaults to ./config.yaml, ~/.config/focustimer/config.yaml, /etc/focustimer/config.yaml")
	logPath    = flag.String("log", "", "Path to log file (optional, defaults to stderr)")
	daemonize  = flag.Bool("d", false, "Run in daemon mode (pid and log file next to the database)")
)

// setupLogging configures the log output destination.
func setupLogging(logFilePath string) (*os.File, error) {
	if logFilePath == "" {
		log.SetOutput(os.Stderr)
		log.Println("Logging to stderr")
		return nil, nil
	}

	dir := filepath.Dir(logFilePath)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create log directory %s: %w", dir, err)
	}

	file, err := os.OpenFile(logFilePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", logFilePath, err)
	}

	log.SetOutput(file)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Printf("Logging to file: %s", logFilePath)
	return file, nil
}

// daemonContext places the pid and log files next to the database.
func daemonContext(cfg *config.Config) *daemon.Context {
	dir, err := filepath.Abs(filepath.Dir(cfg.DatabasePath))
	if err != nil {
		dir = "."
	}
	return &daemon.Context{
		PidFileName: filepath.Join(dir, "focustimerd.pid"),
		PidFilePerm: 0644,
		LogFileName: filepath.Join(dir, "focustimerd.log"),
		LogFilePerm: 0640,
		WorkDir:     "./",
		Umask:       027,
	}
}

func main() {
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}

	if *daemonize {
		cntxt := daemonContext(cfg)
		child, err := cntxt.Reborn()
		if err != nil {
			log.Fatalf("FATAL: Failed to daemonize: %v", err)
		}
		if child != nil {
			fmt.Printf("focustimerd started in background (pid %d)\n", child.Pid)
			return
		}
		defer cntxt.Release()
		log.Println("Running as daemon")
	}

	logFile, logErr := setupLogging(*logPath)
	if logErr != nil {
		fmt.Fprintf(os.Stderr, "Error setting up file logging: %v. Logging to stderr instead.\n", logErr)
		log.SetOutput(os.Stderr)
		log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	}
	if logFile != nil {
		defer logFile.Close()
	}

	application, err := app.NewApp(cfg)
	if err != nil {
		log.Fatalf("FATAL: Failed to create application: %v", err)
	}

	if err := application.Run(); err != nil {
		log.Fatalf("FATAL: Application exited with error: %v", err)
	}

	log.Println("focustimerd finished successfully.")
}
