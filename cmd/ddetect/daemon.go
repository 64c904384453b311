package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"datadetector/internal/config"
	"datadetector/internal/server"
)

const (
	daemonBinary = "ddetectd"
	stopGrace    = 3 * time.Second
)

// serve runs the HTTP API in the foreground.
func serve() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	logger.Info("starting server", "addr", cfg.Server.Addr, "backend", cfg.Backend)
	return server.Run(ctx, cfg, logger)
}

// daemonControl manages a background ddetectd through a pid file.
type daemonControl struct {
	pidPath string
	logPath string
	out     io.Writer
	// spawn starts the daemon process; exec of ddetectd when nil.
	spawn func(logFile *os.File) (*os.Process, error)
}

func newDaemonControl() (*daemonControl, error) {
	appDir, err := config.AppDir()
	if err != nil {
		return nil, err
	}
	return &daemonControl{
		pidPath: filepath.Join(appDir, daemonBinary+".pid"),
		logPath: filepath.Join(appDir, "daemon.log"),
		out:     os.Stdout,
		spawn:   spawnDaemon,
	}, nil
}

func startDaemon() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	d, err := newDaemonControl()
	if err != nil {
		return err
	}
	return d.start(cfg)
}

func stopDaemon() error {
	d, err := newDaemonControl()
	if err != nil {
		return err
	}
	return d.stop()
}

func restartDaemon() error {
	if err := stopDaemon(); err != nil {
		return err
	}
	return startDaemon()
}

func status() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	d, err := newDaemonControl()
	if err != nil {
		return err
	}
	d.status(cfg)
	return nil
}

func (d *daemonControl) start(cfg config.Config) error {
	if running, pid := d.running(); running {
		fmt.Fprintf(d.out, "ddetectd already running (pid=%d)\n", pid)
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(d.logPath), 0o755); err != nil {
		return err
	}
	lf, err := os.OpenFile(d.logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer lf.Close()

	proc, err := d.spawn(lf)
	if err != nil {
		return err
	}
	if err := os.WriteFile(d.pidPath, []byte(strconv.Itoa(proc.Pid)+"\n"), 0o644); err != nil {
		_ = proc.Kill()
		return err
	}

	fmt.Fprintf(d.out, "ddetectd started (pid=%d)\n", proc.Pid)
	fmt.Fprintf(d.out, "API:        http://%s\n", cfg.Server.Addr)
	fmt.Fprintf(d.out, "Backend:    %s\n", cfg.Backend)
	fmt.Fprintf(d.out, "Daemon log: %s\n", d.logPath)
	fmt.Fprintf(d.out, "Audit:      %s (%s)\n", cfg.Audit.Path, cfg.Audit.Driver)
	return nil
}

// stop sends SIGTERM, escalating to SIGKILL after stopGrace.
func (d *daemonControl) stop() error {
	pid, err := d.readPID()
	if errors.Is(err, os.ErrNotExist) {
		fmt.Fprintln(d.out, "ddetectd not running")
		return nil
	}
	if err != nil {
		return err
	}
	if !isProcessRunning(pid) {
		_ = os.Remove(d.pidPath)
		fmt.Fprintln(d.out, "ddetectd not running")
		return nil
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	for deadline := time.Now().Add(stopGrace); time.Now().Before(deadline) && isProcessRunning(pid); {
		time.Sleep(100 * time.Millisecond)
	}
	if isProcessRunning(pid) {
		if err := proc.Signal(syscall.SIGKILL); err != nil && !errors.Is(err, os.ErrProcessDone) {
			return err
		}
	}
	if err := os.Remove(d.pidPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	fmt.Fprintf(d.out, "ddetectd stopped (pid=%d)\n", pid)
	return nil
}

func (d *daemonControl) status(cfg config.Config) {
	if running, pid := d.running(); running {
		fmt.Fprintf(d.out, "Status:     running (pid=%d)\n", pid)
	} else {
		fmt.Fprintln(d.out, "Status:     stopped")
	}
	fmt.Fprintf(d.out, "Addr:       %s\n", cfg.Server.Addr)
	fmt.Fprintf(d.out, "Backend:    %s\n", cfg.Backend)
	fmt.Fprintf(d.out, "Language:   %s\n", cfg.Language)
	fmt.Fprintf(d.out, "Audit:      %s (%s)\n", cfg.Audit.Path, cfg.Audit.Driver)
	fmt.Fprintf(d.out, "Daemon log: %s\n", d.logPath)
}

// running reports the live daemon pid and clears a stale pid file.
func (d *daemonControl) running() (bool, int) {
	pid, err := d.readPID()
	if err != nil {
		return false, 0
	}
	if !isProcessRunning(pid) {
		_ = os.Remove(d.pidPath)
		return false, 0
	}
	return true, pid
}

func (d *daemonControl) readPID() (int, error) {
	data, err := os.ReadFile(d.pidPath)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("invalid pid file %s", d.pidPath)
	}
	return pid, nil
}

func isProcessRunning(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}

// spawnDaemon runs ddetectd from PATH or next to this binary in its own
// session so it outlives the shell.
func spawnDaemon(logFile *os.File) (*os.Process, error) {
	path, err := exec.LookPath(daemonBinary)
	if err != nil {
		self, serr := os.Executable()
		if serr != nil {
			return nil, fmt.Errorf("%s not found in PATH", daemonBinary)
		}
		path = filepath.Join(filepath.Dir(self), daemonBinary)
		if _, serr := os.Stat(path); serr != nil {
			return nil, fmt.Errorf("%s not found in PATH", daemonBinary)
		}
	}
	cmd := exec.Command(path)
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return cmd.Process, nil
}

// logs prints the tail of the JSONL audit log and follows it.
func logs() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Audit.Driver != config.AuditJSONL {
		return fmt.Errorf("logs needs the %s audit driver, configured %q", config.AuditJSONL, cfg.Audit.Driver)
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Audit.Path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(cfg.Audit.Path, os.O_CREATE|os.O_RDONLY, 0o644)
	if err != nil {
		return err
	}
	lines, err := readLastLines(f, 20)
	_ = f.Close()
	if err != nil {
		return err
	}
	for _, line := range lines {
		fmt.Println(line)
	}

	stat, err := os.Stat(cfg.Audit.Path)
	if err != nil {
		return err
	}
	offset := stat.Size()
	for {
		time.Sleep(500 * time.Millisecond)
		if offset, err = followFrom(cfg.Audit.Path, offset, os.Stdout); err != nil {
			return err
		}
	}
}

// followFrom prints lines appended to path after offset and returns the new
// offset. A truncated file is read from the start.
func followFrom(path string, offset int64, w io.Writer) (int64, error) {
	stat, err := os.Stat(path)
	if err != nil {
		return offset, err
	}
	if stat.Size() < offset {
		offset = 0
	}
	if stat.Size() == offset {
		return offset, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return offset, err
	}
	defer f.Close()
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return offset, err
	}
	lines, err := readLastLines(f, -1)
	if err != nil {
		return offset, err
	}
	for _, line := range lines {
		fmt.Fprintln(w, line)
	}
	return stat.Size(), nil
}

// readLastLines returns the last n non-blank lines, or all of them when n
// is negative.
func readLastLines(r io.Reader, n int) ([]string, error) {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), 1<<20)
	var buf []string
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line == "" {
			continue
		}
		buf = append(buf, line)
		if n >= 0 && len(buf) > n {
			buf = buf[1:]
		}
	}
	return buf, s.Err()
}
