// main.go - Collatz Conjecture Checker
// Exhaustively verifies the Collatz conjecture over contiguous ranges of
// arbitrary-precision integers using a fixed pool of worker goroutines.

package main

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	gcpu "github.com/shirou/gopsutil/v4/cpu"
	gmem "github.com/shirou/gopsutil/v4/mem"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
)

// ==================== VERSION & BUILD INFO ====================
const (
	Version   = "1.2.0"
	BuildDate = "2026-08-23"
	Author    = "Myles Trevino"
	License   = "Apache-2.0"
)

// ==================== CONFIGURATION STRUCTURES ====================

// SearchConfig holds the three values that define the search. A zero
// ThreadCount or IterationsPerThread, or an empty StartNumber, means the
// value was not supplied and must be collected interactively.
type SearchConfig struct {
	StartNumber         string `mapstructure:"start_number" json:"start_number" yaml:"start_number"`
	ThreadCount         uint64 `mapstructure:"thread_count" json:"thread_count" yaml:"thread_count"`
	IterationsPerThread uint64 `mapstructure:"iterations_per_thread" json:"iterations_per_thread" yaml:"iterations_per_thread"`
}

type OutputConfig struct {
	SaveBatchLog    bool   `mapstructure:"save_batch_log" json:"save_batch_log" yaml:"save_batch_log"`
	SaveStats       bool   `mapstructure:"save_stats" json:"save_stats" yaml:"save_stats"`
	OutputDirectory string `mapstructure:"output_directory" json:"output_directory" yaml:"output_directory"`
	FilenamePrefix  string `mapstructure:"filename_prefix" json:"filename_prefix" yaml:"filename_prefix"`
	Verbose         bool   `mapstructure:"verbose" json:"verbose" yaml:"verbose"`
	RealTimeDisplay bool   `mapstructure:"real_time_display" json:"real_time_display" yaml:"real_time_display"`
	LogLevel        string `mapstructure:"log_level" json:"log_level" yaml:"log_level"`
}

type PerformanceConfig struct {
	// BatchLimit stops the scheduler after N batches. 0 runs forever.
	BatchLimit    uint64        `mapstructure:"batch_limit" json:"batch_limit" yaml:"batch_limit"`
	StatsInterval time.Duration `mapstructure:"stats_interval" json:"stats_interval" yaml:"stats_interval"`
	BenchmarkMode bool          `mapstructure:"benchmark_mode" json:"benchmark_mode" yaml:"benchmark_mode"`
}

type Config struct {
	Search      SearchConfig      `mapstructure:"search" json:"search" yaml:"search"`
	Output      OutputConfig      `mapstructure:"output" json:"output" yaml:"output"`
	Performance PerformanceConfig `mapstructure:"performance" json:"performance" yaml:"performance"`

	// Internal fields
	configPath string
	loadedFrom string
}

// BatchSize is thread_count * iterations_per_thread. Overflow is rejected
// by validation before this is ever used.
func (c *Config) BatchSize() uint64 {
	return c.Search.ThreadCount * c.Search.IterationsPerThread
}

// ==================== DATA STRUCTURES ====================

// BatchRange is the half-open interval [Start, Start+Size) verified in one
// batch. Immutable for the duration of the batch.
type BatchRange struct {
	Start *big.Int
	Size  uint64
}

func (r BatchRange) End() *big.Int {
	return new(big.Int).Add(r.Start, new(big.Int).SetUint64(r.Size))
}

// WorkerAssignment is one contiguous slice of a BatchRange, consumed
// entirely by a single worker.
type WorkerAssignment struct {
	Start *big.Int
	Count uint64
}

// BatchResult describes one completed batch for the batch log.
type BatchResult struct {
	Index       uint64
	Start       string
	End         string
	Size        uint64
	Duration    time.Duration
	CompletedAt time.Time
}

// StatisticsSnapshot is the exported view of Statistics. Keeping the
// fields in their own struct lets callers copy it without copying the lock.
type StatisticsSnapshot struct {
	StartTime        time.Time     `json:"start_time"`
	CurrentStart     string        `json:"current_start"`
	BatchesCompleted uint64        `json:"batches_completed"`
	NumbersVerified  uint64        `json:"numbers_verified"`
	NumbersPerSecond float64       `json:"numbers_per_second"`
	ElapsedTime      time.Duration `json:"elapsed_time"`
	LastBatchTime    time.Duration `json:"last_batch_time"`
	AverageBatchTime time.Duration `json:"average_batch_time"`
	TotalBatchTime   time.Duration `json:"total_batch_time"`

	// System info
	GoRoutines int     `json:"go_routines"`
	GCCycles   uint32  `json:"gc_cycles"`
	AllocMB    float64 `json:"alloc_mb"`
	SysMB      float64 `json:"sys_mb"`

	// Version info
	Version   string            `json:"version"`
	BuildInfo map[string]string `json:"build_info"`
}

type Statistics struct {
	mu sync.RWMutex
	StatisticsSnapshot
}

func (st *Statistics) Snapshot() StatisticsSnapshot {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.StatisticsSnapshot
}

// RecordBatch folds one completed batch into the totals. nextStart is the
// start of the batch the scheduler will attempt next.
func (st *Statistics) RecordBatch(nextStart string, size uint64, elapsed time.Duration) {
	st.mu.Lock()
	defer st.mu.Unlock()

	st.BatchesCompleted++
	st.NumbersVerified += size
	st.CurrentStart = nextStart
	st.LastBatchTime = elapsed
	st.TotalBatchTime += elapsed
	st.AverageBatchTime = st.TotalBatchTime / time.Duration(st.BatchesCompleted)
}

// ==================== HARDWARE DETECTION ====================
type HardwareInfo struct {
	LogicalCores  int
	PhysicalCores int
	ModelName     string
	TotalRAMMB    float64
}

func detectHardware() HardwareInfo {
	hw := HardwareInfo{LogicalCores: runtime.NumCPU()}

	if n, err := gcpu.Counts(true); err == nil && n > 0 {
		hw.LogicalCores = n
	}
	if n, err := gcpu.Counts(false); err == nil && n > 0 {
		hw.PhysicalCores = n
	}
	if infos, err := gcpu.Info(); err == nil && len(infos) > 0 {
		hw.ModelName = strings.TrimSpace(infos[0].ModelName)
	}
	if vm, err := gmem.VirtualMemory(); err == nil {
		hw.TotalRAMMB = float64(vm.Total) / 1024 / 1024
	}

	return hw
}

// RecommendedThreadCount is half the logical cores, the suggestion shown
// in the interactive prompt.
func (hw HardwareInfo) RecommendedThreadCount() uint64 {
	n := hw.LogicalCores / 2
	if n < 1 {
		n = 1
	}
	return uint64(n)
}

// ==================== ARBITRARY-PRECISION COUNTER ====================
var (
	bigOne   = big.NewInt(1)
	bigThree = big.NewInt(3)
)

// Counter is a mutable arbitrary-precision non-negative integer. A Counter
// is owned by exactly one goroutine; workers receive independent copies.
type Counter struct {
	v big.Int
}

// NewCounter copies seed into a fresh counter.
func NewCounter(seed *big.Int) *Counter {
	c := &Counter{}
	c.v.Set(seed)
	return c
}

func (c *Counter) Copy() *Counter {
	n := &Counter{}
	n.v.Set(&c.v)
	return n
}

func (c *Counter) Increment(by uint64) {
	if by == 1 {
		c.v.Add(&c.v, bigOne)
		return
	}
	var d big.Int
	d.SetUint64(by)
	c.v.Add(&c.v, &d)
}

func (c *Counter) IsOne() bool {
	return c.v.Cmp(bigOne) == 0
}

func (c *Counter) IsEven() bool {
	return c.v.Bit(0) == 0
}

// Halve divides by two exactly. Valid only when the counter is even.
func (c *Counter) Halve() {
	c.v.Rsh(&c.v, 1)
}

// TripleAndIncrement sets the counter to 3c+1.
func (c *Counter) TripleAndIncrement() {
	c.v.Mul(&c.v, bigThree)
	c.v.Add(&c.v, bigOne)
}

// Value returns an independent copy of the current value.
func (c *Counter) Value() *big.Int {
	return new(big.Int).Set(&c.v)
}

func (c *Counter) String() string {
	return c.v.String()
}

// ==================== SEQUENCE VERIFIER ====================

// verifyCollatz applies the Collatz step to a private copy of c until it
// reaches 1. The caller's counter is never mutated. Termination rests on
// the (unproven) conjecture; the loop is deliberately unbounded and each
// verification is computed from scratch.
func verifyCollatz(c *Counter) {
	n := c.Copy()
	for !n.IsOne() {
		if n.IsEven() {
			n.Halve()
		} else {
			n.TripleAndIncrement()
		}
	}
}

// ==================== WORKER ====================

// Worker verifies one contiguous sub-range of a batch. It owns a private
// counter and touches no shared state; its only observable effect is CPU
// time. A fault in a worker is fatal to the whole process.
type Worker struct {
	ID         int
	Assignment WorkerAssignment
}

func (w *Worker) Run() {
	counter := NewCounter(w.Assignment.Start)
	for i := uint64(0); i < w.Assignment.Count; i++ {
		verifyCollatz(counter)
		counter.Increment(1)
	}
}

// ==================== BATCH SCHEDULER ====================

// BatchScheduler drives the search: partition the current batch into
// fixed-width assignments, launch one goroutine per assignment, join them
// all, report the wall-clock delta, advance, repeat. Shutdown is observed
// only between batches; an in-flight batch always runs to completion.
type BatchScheduler struct {
	config  *Config
	logger  *logrus.Logger
	stats   *Statistics
	storage *StorageManager // nil when file output is disabled

	start      *big.Int
	batchSize  uint64
	batchIndex uint64
}

func NewBatchScheduler(cfg *Config, start *big.Int, stats *Statistics, storage *StorageManager, logger *logrus.Logger) *BatchScheduler {
	return &BatchScheduler{
		config:    cfg,
		logger:    logger,
		stats:     stats,
		storage:   storage,
		start:     new(big.Int).Set(start),
		batchSize: cfg.BatchSize(),
	}
}

// CurrentStart returns the start of the next batch to be attempted.
func (s *BatchScheduler) CurrentStart() *big.Int {
	return new(big.Int).Set(s.start)
}

// partition slices batch into thread_count contiguous, non-overlapping
// assignments of exactly iterations_per_thread integers each. Every seed
// is copied here, on the scheduler goroutine, before any worker launches;
// no start value is ever aliased between goroutines.
func (s *BatchScheduler) partition(batch BatchRange) []WorkerAssignment {
	threads := s.config.Search.ThreadCount
	width := s.config.Search.IterationsPerThread

	assignments := make([]WorkerAssignment, 0, threads)
	cursor := new(big.Int).Set(batch.Start)
	step := new(big.Int).SetUint64(width)

	for i := uint64(0); i < threads; i++ {
		assignments = append(assignments, WorkerAssignment{
			Start: new(big.Int).Set(cursor),
			Count: width,
		})
		cursor.Add(cursor, step)
	}

	return assignments
}

// runBatch launches one worker per assignment and blocks until all have
// finished, returning the wall-clock duration of the whole batch.
func (s *BatchScheduler) runBatch(batch BatchRange) time.Duration {
	assignments := s.partition(batch)

	startTime := time.Now()

	var wg sync.WaitGroup
	for i, assignment := range assignments {
		wg.Add(1)
		go func(id int, a WorkerAssignment) {
			defer wg.Done()
			w := Worker{ID: id, Assignment: a}
			w.Run()
		}(i, assignment)
	}
	wg.Wait()

	return time.Since(startTime)
}

// Run loops forever (or until the batch limit) verifying batches. The
// context is checked between batches only.
func (s *BatchScheduler) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Scheduler stopping")
			return nil
		default:
		}

		batch := BatchRange{Start: new(big.Int).Set(s.start), Size: s.batchSize}
		end := batch.End()

		s.logger.Debugf("Batch %d: %d workers x %d iterations starting at %s",
			s.batchIndex+1, s.config.Search.ThreadCount,
			s.config.Search.IterationsPerThread, batch.Start)

		elapsed := s.runBatch(batch)
		s.batchIndex++

		s.logger.Infof("Trying %s - %s... Passed (%d ms)",
			batch.Start, end, elapsed.Milliseconds())

		s.start.Add(s.start, new(big.Int).SetUint64(s.batchSize))
		s.stats.RecordBatch(s.start.String(), s.batchSize, elapsed)

		if s.storage != nil {
			result := &BatchResult{
				Index:       s.batchIndex,
				Start:       batch.Start.String(),
				End:         end.String(),
				Size:        s.batchSize,
				Duration:    elapsed,
				CompletedAt: time.Now(),
			}
			if err := s.storage.SaveBatch(result); err != nil {
				s.logger.Errorf("Failed to save batch record: %v", err)
			}
		}

		if limit := s.config.Performance.BatchLimit; limit > 0 && s.batchIndex >= limit {
			s.logger.Infof("Batch limit of %d reached", limit)
			return nil
		}
	}
}

// ==================== STORAGE ====================

// StorageManager appends completed batches to a CSV log and rewrites a
// statistics JSON. Both are reporting output only; nothing is ever read
// back and the program cannot resume from them.
type StorageManager struct {
	config  *OutputConfig
	baseDir string
	logger  *logrus.Logger
	mu      sync.Mutex

	batchFile   *os.File
	batchWriter *csv.Writer
	statsFile   *os.File

	batchesSaved int64
}

func NewStorageManager(cfg *OutputConfig, logger *logrus.Logger) (*StorageManager, error) {
	baseDir := cfg.OutputDirectory
	if baseDir == "" {
		baseDir = "."
	}

	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	sm := &StorageManager{
		config:  cfg,
		baseDir: baseDir,
		logger:  logger,
	}

	if err := sm.initializeFiles(); err != nil {
		return nil, err
	}

	return sm, nil
}

func (sm *StorageManager) initializeFiles() error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	prefix := sm.config.FilenamePrefix
	if prefix == "" {
		prefix = "collatz"
	}

	if sm.config.SaveBatchLog {
		batchPath := filepath.Join(sm.baseDir, prefix+"_batches.csv")
		file, err := os.OpenFile(batchPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return fmt.Errorf("failed to open batch log: %w", err)
		}

		sm.batchFile = file
		sm.batchWriter = csv.NewWriter(file)

		// Write header if file is new
		if stat, _ := file.Stat(); stat.Size() == 0 {
			header := []string{"batch", "start", "end", "size", "duration_ms", "completed_at"}
			if err := sm.batchWriter.Write(header); err != nil {
				return fmt.Errorf("failed to write header: %w", err)
			}
			sm.batchWriter.Flush()
		}
	}

	if sm.config.SaveStats {
		statsPath := filepath.Join(sm.baseDir, prefix+"_stats.json")
		file, err := os.OpenFile(statsPath, os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return fmt.Errorf("failed to open stats file: %w", err)
		}
		sm.statsFile = file
	}

	return nil
}

func (sm *StorageManager) SaveBatch(result *BatchResult) error {
	if !sm.config.SaveBatchLog || sm.batchWriter == nil {
		return nil
	}

	sm.mu.Lock()
	defer sm.mu.Unlock()

	record := []string{
		strconv.FormatUint(result.Index, 10),
		result.Start,
		result.End,
		strconv.FormatUint(result.Size, 10),
		strconv.FormatInt(result.Duration.Milliseconds(), 10),
		result.CompletedAt.Format(time.RFC3339),
	}

	if err := sm.batchWriter.Write(record); err != nil {
		return fmt.Errorf("failed to write batch record: %w", err)
	}

	// Batches take seconds each, so flush every record
	sm.batchWriter.Flush()
	if err := sm.batchWriter.Error(); err != nil {
		return fmt.Errorf("failed to flush batch log: %w", err)
	}

	sm.batchesSaved++
	return nil
}

func (sm *StorageManager) SaveStatistics(snapshot StatisticsSnapshot) error {
	if !sm.config.SaveStats || sm.statsFile == nil {
		return nil
	}

	sm.mu.Lock()
	defer sm.mu.Unlock()

	// Truncate file and write fresh
	if err := sm.statsFile.Truncate(0); err != nil {
		return fmt.Errorf("failed to truncate stats file: %w", err)
	}
	if _, err := sm.statsFile.Seek(0, 0); err != nil {
		return fmt.Errorf("failed to seek stats file: %w", err)
	}

	encoder := json.NewEncoder(sm.statsFile)
	encoder.SetIndent("", "  ")

	if err := encoder.Encode(snapshot); err != nil {
		return fmt.Errorf("failed to encode statistics: %w", err)
	}

	return nil
}

func (sm *StorageManager) Close() error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	var errors []string

	if sm.batchWriter != nil {
		sm.batchWriter.Flush()
		if err := sm.batchWriter.Error(); err != nil {
			errors = append(errors, fmt.Sprintf("batch writer: %v", err))
		}
	}

	if sm.batchFile != nil {
		if err := sm.batchFile.Close(); err != nil {
			errors = append(errors, fmt.Sprintf("batch file: %v", err))
		}
	}

	if sm.statsFile != nil {
		if err := sm.statsFile.Close(); err != nil {
			errors = append(errors, fmt.Sprintf("stats file: %v", err))
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("storage close errors: %s", strings.Join(errors, "; "))
	}

	return nil
}

// ==================== MAIN APPLICATION CONTROLLER ====================
type CollatzChecker struct {
	config    *Config
	hardware  HardwareInfo
	scheduler *BatchScheduler
	storage   *StorageManager
	stats     *Statistics
	logger    *logrus.Logger
	ctx       context.Context
	cancel    context.CancelFunc

	startNumber *big.Int
}

func NewCollatzChecker(cfg *Config, hw HardwareInfo) (*CollatzChecker, error) {
	logger := setupLogger(cfg.Output)

	start, err := parsePositiveBigInt(cfg.Search.StartNumber)
	if err != nil {
		return nil, fmt.Errorf("invalid start number: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	checker := &CollatzChecker{
		config:      cfg,
		hardware:    hw,
		logger:      logger,
		ctx:         ctx,
		cancel:      cancel,
		startNumber: start,
	}

	checker.stats = &Statistics{
		StatisticsSnapshot: StatisticsSnapshot{
			StartTime:    time.Now(),
			CurrentStart: start.String(),
			Version:      Version,
			BuildInfo: map[string]string{
				"build_date": BuildDate,
				"go_version": runtime.Version(),
				"author":     Author,
				"license":    License,
				"hostname":   getHostnameSafe(),
			},
		},
	}

	if cfg.Output.SaveBatchLog || cfg.Output.SaveStats {
		storage, err := NewStorageManager(&cfg.Output, logger)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("failed to create storage manager: %w", err)
		}
		checker.storage = storage
	}

	checker.scheduler = NewBatchScheduler(cfg, start, checker.stats, checker.storage, logger)

	return checker, nil
}

func setupLogger(cfg OutputConfig) *logrus.Logger {
	logger := logrus.New()

	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})

	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		logger.SetLevel(logrus.DebugLevel)
	case "info":
		logger.SetLevel(logrus.InfoLevel)
	case "warn":
		logger.SetLevel(logrus.WarnLevel)
	case "error":
		logger.SetLevel(logrus.ErrorLevel)
	default:
		if cfg.Verbose {
			logger.SetLevel(logrus.DebugLevel)
		} else {
			logger.SetLevel(logrus.InfoLevel)
		}
	}

	return logger
}

func (c *CollatzChecker) Run() error {
	c.printStartupBanner()

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(signalChan)

	group, ctx := errgroup.WithContext(c.ctx)

	// Statistics updater
	group.Go(func() error {
		return c.updateStatistics(ctx)
	})

	// Signal watcher. An in-flight batch always runs to completion, so a
	// signal only cancels the context and the scheduler stops at the next
	// batch boundary.
	group.Go(func() error {
		select {
		case sig := <-signalChan:
			c.logger.Infof("Received %v, finishing current batch before shutdown", sig)
			c.cancel()
		case <-ctx.Done():
		}
		return nil
	})

	c.logger.Info("Starting batch verification loop")
	err := c.scheduler.Run(ctx)

	// Clean shutdown
	c.cancel()
	if werr := group.Wait(); werr != nil && err == nil {
		err = werr
	}

	if c.storage != nil {
		if serr := c.storage.SaveStatistics(c.stats.Snapshot()); serr != nil {
			c.logger.Errorf("Failed to save final statistics: %v", serr)
		}
		if serr := c.storage.Close(); serr != nil {
			c.logger.Errorf("Failed to close storage: %v", serr)
		}
	}

	c.printFinalSummary()

	return err
}

func (c *CollatzChecker) updateStatistics(ctx context.Context) error {
	interval := c.config.Performance.StatsInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	lastVerified := uint64(0)
	lastTime := time.Now()

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-ticker.C:
			now := time.Now()

			var memStats runtime.MemStats
			runtime.ReadMemStats(&memStats)

			c.stats.mu.Lock()
			c.stats.ElapsedTime = now.Sub(c.stats.StartTime)

			verifiedDelta := c.stats.NumbersVerified - lastVerified
			timeDelta := now.Sub(lastTime).Seconds()
			if timeDelta > 0 {
				c.stats.NumbersPerSecond = float64(verifiedDelta) / timeDelta
			}

			c.stats.GoRoutines = runtime.NumGoroutine()
			c.stats.GCCycles = memStats.NumGC
			c.stats.AllocMB = float64(memStats.Alloc) / 1024 / 1024
			c.stats.SysMB = float64(memStats.Sys) / 1024 / 1024

			lastVerified = c.stats.NumbersVerified
			c.stats.mu.Unlock()
			lastTime = now

			if c.storage != nil {
				if err := c.storage.SaveStatistics(c.stats.Snapshot()); err != nil {
					c.logger.Errorf("Failed to save statistics: %v", err)
				}
			}

			if c.config.Output.RealTimeDisplay {
				c.displayStatistics()
			}
		}
	}
}

func (c *CollatzChecker) displayStatistics() {
	stats := c.stats.Snapshot()

	// Clear screen
	fmt.Print("\033[H\033[2J")

	fmt.Printf("  COLLATZ CONJECTURE CHECKER v%s\n", Version)
	fmt.Println()
	fmt.Printf("  Current Start:      %s\n", stats.CurrentStart)
	fmt.Printf("  Batches Completed:  %s\n", formatNumberLarge(int64(stats.BatchesCompleted)))
	fmt.Printf("  Numbers Verified:   %s\n", formatNumberLarge(int64(stats.NumbersVerified)))
	fmt.Printf("  Throughput:         %.0f numbers/sec\n", stats.NumbersPerSecond)
	fmt.Printf("  Last Batch:         %d ms\n", stats.LastBatchTime.Milliseconds())
	fmt.Printf("  Average Batch:      %d ms\n", stats.AverageBatchTime.Milliseconds())
	fmt.Printf("  Elapsed Time:       %s\n", formatDurationDetailed(stats.ElapsedTime))
	fmt.Println()
	fmt.Printf("  Threads:            %d\n", c.config.Search.ThreadCount)
	fmt.Printf("  Batch Size:         %d\n", c.config.BatchSize())
	fmt.Printf("  Goroutines:         %d\n", stats.GoRoutines)
	fmt.Printf("  Memory (Go):        %.1f MB allocated\n", stats.AllocMB)
	fmt.Println()
	fmt.Println("  Ctrl+C - finish current batch and shut down")
}

func (c *CollatzChecker) printStartupBanner() {
	fmt.Println("Collatz Conjecture Checker")
	fmt.Printf("Version: %s | Build: %s | Author: %s | License: %s\n",
		Version, BuildDate, Author, License)
	fmt.Printf("Go: %s | CPUs: %d logical / %d physical\n",
		runtime.Version(), c.hardware.LogicalCores, c.hardware.PhysicalCores)
	if c.hardware.ModelName != "" {
		fmt.Printf("CPU: %s | RAM: %.0f MB\n", c.hardware.ModelName, c.hardware.TotalRAMMB)
	}
	fmt.Println()

	c.logger.Infof("Using %d threads", c.config.Search.ThreadCount)
	c.logger.Infof("Using %d iterations per thread", c.config.Search.IterationsPerThread)
	c.logger.Infof("The batch size is %d", c.config.BatchSize())
	c.logger.Infof("Starting at %s", c.startNumber)
	if c.config.Performance.BatchLimit > 0 {
		c.logger.Infof("Stopping after %d batches", c.config.Performance.BatchLimit)
	}
	if c.storage != nil {
		c.logger.Infof("Output directory: %s", c.config.Output.OutputDirectory)
	}
}

func (c *CollatzChecker) printFinalSummary() {
	stats := c.stats.Snapshot()
	elapsed := time.Since(stats.StartTime)

	fmt.Println()
	fmt.Println("Verification stopped - summary")
	fmt.Printf("Total Run Time:       %s\n", formatDurationDetailed(elapsed))
	fmt.Printf("Batches Completed:    %s\n", formatNumberLarge(int64(stats.BatchesCompleted)))
	fmt.Printf("Numbers Verified:     %s\n", formatNumberLarge(int64(stats.NumbersVerified)))
	if elapsed.Seconds() > 0 {
		fmt.Printf("Average Throughput:   %.0f numbers/sec\n",
			float64(stats.NumbersVerified)/elapsed.Seconds())
	}
	if stats.BatchesCompleted > 0 {
		fmt.Printf("Average Batch Time:   %d ms\n", stats.AverageBatchTime.Milliseconds())
	}
	fmt.Printf("Next Unverified:      %s\n", stats.CurrentStart)
	fmt.Println()
	fmt.Println("Every number attempted reached 1. To continue from here:")
	fmt.Printf("  ./collatz-checker --threads %d --iterations %d --start %s\n",
		c.config.Search.ThreadCount, c.config.Search.IterationsPerThread, stats.CurrentStart)
}

// ==================== INTERACTIVE INPUT ====================

// collectSearchInput prompts for any search value not already supplied by
// flags, config file or environment. Invalid input reprompts until a valid
// value is entered, so the rest of the program never observes an invalid
// search configuration.
func collectSearchInput(cfg *Config, hw HardwareInfo) error {
	reader := bufio.NewReader(os.Stdin)

	if cfg.Search.ThreadCount == 0 {
		prompt := fmt.Sprintf("Thread Count (%d Recommended)", hw.RecommendedThreadCount())
		value, err := promptUint64(reader, prompt)
		if err != nil {
			return err
		}
		cfg.Search.ThreadCount = value
	}

	if cfg.Search.IterationsPerThread == 0 {
		value, err := promptUint64(reader, "Iterations Per Thread (1000000 Recommended)")
		if err != nil {
			return err
		}
		cfg.Search.IterationsPerThread = value
	}

	if cfg.Search.StartNumber == "" {
		value, err := promptBigInt(reader, "Start Number (Up to 2^71 has been checked as of 2024)")
		if err != nil {
			return err
		}
		cfg.Search.StartNumber = value.String()
	}

	return nil
}

func promptLine(reader *bufio.Reader, prompt string) (string, error) {
	fmt.Printf("%s: ", prompt)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func promptUint64(reader *bufio.Reader, prompt string) (uint64, error) {
	for {
		line, err := promptLine(reader, prompt)
		if err != nil {
			return 0, err
		}

		value, perr := parsePositiveUint64(line)
		if perr == nil {
			return value, nil
		}
		fmt.Println("Invalid input.")
	}
}

func promptBigInt(reader *bufio.Reader, prompt string) (*big.Int, error) {
	for {
		line, err := promptLine(reader, prompt)
		if err != nil {
			return nil, err
		}

		value, perr := parsePositiveBigInt(line)
		if perr == nil {
			return value, nil
		}
		fmt.Println("Invalid input.")
	}
}

// ==================== UTILITY FUNCTIONS ====================
func getHostnameSafe() string {
	hostname, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return hostname
}

func isDecimalDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// parsePositiveUint64 accepts decimal digits representing an integer in
// [1, 2^64).
func parsePositiveUint64(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if !isDecimalDigits(s) {
		return 0, fmt.Errorf("%q is not a decimal integer", s)
	}

	value, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%q is out of range: %w", s, err)
	}
	if value == 0 {
		return 0, fmt.Errorf("value must be at least 1")
	}

	return value, nil
}

// parsePositiveBigInt accepts decimal digits representing any integer > 0.
func parsePositiveBigInt(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if !isDecimalDigits(s) {
		return nil, fmt.Errorf("%q is not a decimal integer", s)
	}

	value, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("failed to parse %q", s)
	}
	if value.Sign() <= 0 {
		return nil, fmt.Errorf("value must be greater than zero")
	}

	return value, nil
}

func formatNumberLarge(n int64) string {
	if n < 1000 {
		return strconv.FormatInt(n, 10)
	}

	suffixes := []string{"", "k", "M", "B", "T"}
	suffixIndex := 0
	value := float64(n)

	for value >= 1000 && suffixIndex < len(suffixes)-1 {
		value /= 1000
		suffixIndex++
	}

	return fmt.Sprintf("%.1f%s", value, suffixes[suffixIndex])
}

func formatDurationDetailed(d time.Duration) string {
	days := int(d.Hours() / 24)
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %02dh %02dm %02ds", days, hours, minutes, seconds)
	} else if hours > 0 {
		return fmt.Sprintf("%02dh %02dm %02ds", hours, minutes, seconds)
	} else if minutes > 0 {
		return fmt.Sprintf("%02dm %02ds", minutes, seconds)
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

// ==================== CONFIGURATION MANAGEMENT ====================
func loadConfigFromFile(path string) (*Config, error) {
	viper.SetConfigFile(path)
	viper.SetConfigType("yaml")

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	cfg.configPath = path
	cfg.loadedFrom = viper.ConfigFileUsed()

	return &cfg, nil
}

func setDefaults() {
	// Search defaults: zero/empty means "prompt interactively"
	viper.SetDefault("search.start_number", "")
	viper.SetDefault("search.thread_count", 0)
	viper.SetDefault("search.iterations_per_thread", 0)

	// Output defaults
	viper.SetDefault("output.save_batch_log", true)
	viper.SetDefault("output.save_stats", true)
	viper.SetDefault("output.output_directory", ".")
	viper.SetDefault("output.filename_prefix", "collatz")
	viper.SetDefault("output.verbose", false)
	viper.SetDefault("output.real_time_display", false)
	viper.SetDefault("output.log_level", "info")

	// Performance defaults
	viper.SetDefault("performance.batch_limit", 0)
	viper.SetDefault("performance.stats_interval", "10s")
	viper.SetDefault("performance.benchmark_mode", false)
}

// validateConfig checks everything that can be known before the
// interactive prompts fill in missing search values.
func validateConfig(cfg *Config) error {
	switch strings.ToLower(cfg.Output.LogLevel) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be one of debug, info, warn, error")
	}

	if cfg.Performance.StatsInterval <= 0 {
		return fmt.Errorf("stats_interval must be positive")
	}

	if cfg.Search.StartNumber != "" {
		if _, err := parsePositiveBigInt(cfg.Search.StartNumber); err != nil {
			return fmt.Errorf("start_number: %w", err)
		}
	}

	threads := cfg.Search.ThreadCount
	iterations := cfg.Search.IterationsPerThread
	if threads > 0 && iterations > 0 && iterations > math.MaxUint64/threads {
		return fmt.Errorf("batch size overflow: %d threads x %d iterations exceeds uint64",
			threads, iterations)
	}

	return nil
}

// validateSearchConfig is the final check once every search value has been
// collected. After this, the core never observes an invalid configuration.
func validateSearchConfig(cfg *SearchConfig) error {
	if cfg.ThreadCount < 1 {
		return fmt.Errorf("thread_count must be at least 1")
	}
	if cfg.IterationsPerThread < 1 {
		return fmt.Errorf("iterations_per_thread must be at least 1")
	}
	if cfg.IterationsPerThread > math.MaxUint64/cfg.ThreadCount {
		return fmt.Errorf("batch size overflow: %d threads x %d iterations exceeds uint64",
			cfg.ThreadCount, cfg.IterationsPerThread)
	}
	if _, err := parsePositiveBigInt(cfg.StartNumber); err != nil {
		return fmt.Errorf("start_number: %w", err)
	}
	return nil
}

func createDefaultConfig() *Config {
	cfg := &Config{}

	setDefaults()
	viper.Unmarshal(cfg)

	return cfg
}

func saveDefaultConfig(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	header := `# Collatz Conjecture Checker Configuration v` + Version + `
# Generated automatically on ` + time.Now().Format("2006-01-02 15:04:05") + `
# Zero thread_count/iterations_per_thread and an empty start_number are
# collected interactively at startup.

`

	return os.WriteFile(path, []byte(header+string(data)), 0644)
}

// ==================== COMMAND LINE INTERFACE ====================
var rootCmd = &cobra.Command{
	Use:   "collatz-checker",
	Short: "Multi-threaded Collatz conjecture checker",
	Long: `Exhaustively verifies the Collatz conjecture over contiguous ranges of
arbitrary-precision integers. A fixed pool of worker goroutines splits each
batch of thread_count x iterations_per_thread integers into equal contiguous
sub-ranges, verifies every number in parallel, reports the batch wall-clock
time, then advances to the next batch forever.`,
}

// Assigned in init to avoid an initialization cycle between rootCmd and
// loadConfig/applyCommandLineOverrides.
var rootRun = func(cmd *cobra.Command, args []string) {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Printf("Configuration error: %v\n", err)
		os.Exit(1)
	}

	hw := detectHardware()

	fmt.Printf("Collatz Conjecture Checker v%s\n\n---\n\n", Version)
	if err := collectSearchInput(cfg, hw); err != nil {
		fmt.Printf("Input error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("\n---")

	if err := validateSearchConfig(&cfg.Search); err != nil {
		fmt.Printf("Configuration error: %v\n", err)
		os.Exit(1)
	}

	checker, err := NewCollatzChecker(cfg, hw)
	if err != nil {
		fmt.Printf("Initialization error: %v\n", err)
		os.Exit(1)
	}

	if err := checker.Run(); err != nil {
		fmt.Printf("Runtime error: %v\n", err)
		os.Exit(1)
	}
}

// Global flags
var (
	configPath string
	benchmark  bool
	verbose    bool
)

func init() {
	rootCmd.Run = rootRun

	// Configuration flags
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "collatz.yaml", "Configuration file path")
	rootCmd.PersistentFlags().BoolVar(&benchmark, "benchmark", false, "Run a short fixed number of batches and discard output files")

	// Search flags
	rootCmd.PersistentFlags().Uint64("threads", 0, "Worker thread count (0 = prompt)")
	rootCmd.PersistentFlags().Uint64("iterations", 0, "Iterations per thread per batch (0 = prompt)")
	rootCmd.PersistentFlags().String("start", "", "Decimal start number (empty = prompt)")

	// Run control flags
	rootCmd.PersistentFlags().Uint64("batches", 0, "Stop after this many batches (0 = run forever)")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Verbose output")
	rootCmd.PersistentFlags().Bool("display", false, "Real-time statistics display")
	rootCmd.PersistentFlags().String("output-dir", "", "Output directory (overrides config)")

	// Bind flags to viper
	viper.BindPFlag("search.thread_count", rootCmd.PersistentFlags().Lookup("threads"))
	viper.BindPFlag("search.iterations_per_thread", rootCmd.PersistentFlags().Lookup("iterations"))
	viper.BindPFlag("search.start_number", rootCmd.PersistentFlags().Lookup("start"))
	viper.BindPFlag("performance.batch_limit", rootCmd.PersistentFlags().Lookup("batches"))
	viper.BindPFlag("output.verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	viper.BindPFlag("output.real_time_display", rootCmd.PersistentFlags().Lookup("display"))

	// Environment variables
	viper.SetEnvPrefix("COLLATZ")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
}

func loadConfig() (*Config, error) {
	cfg, err := loadConfigFromFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			fmt.Printf("Config file not found, using defaults: %s\n", configPath)
			cfg = createDefaultConfig()

			if err := saveDefaultConfig(configPath, cfg); err != nil {
				fmt.Printf("Warning: Could not save default config: %v\n", err)
			}
		} else {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}

	applyCommandLineOverrides(cfg)

	if benchmark {
		cfg.Performance.BenchmarkMode = true
		if cfg.Performance.BatchLimit == 0 {
			cfg.Performance.BatchLimit = 10
		}
		cfg.Output.SaveBatchLog = false
		cfg.Output.SaveStats = false
		cfg.Output.RealTimeDisplay = false
	}

	return cfg, nil
}

func applyCommandLineOverrides(cfg *Config) {
	if flags := rootCmd.PersistentFlags(); flags.Changed("output-dir") {
		if dir, err := flags.GetString("output-dir"); err == nil && dir != "" {
			cfg.Output.OutputDirectory = dir
		}
	}
	if verbose {
		cfg.Output.Verbose = true
		cfg.Output.LogLevel = "debug"
	}
}

// ==================== MAIN ENTRY POINT ====================
func main() {
	runtime.GOMAXPROCS(runtime.NumCPU())

	if err := rootCmd.Execute(); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}
