package main

import (
	"context"
	"io"
	"math"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func testConfig(threads, iterations, batchLimit uint64) *Config {
	return &Config{
		Search: SearchConfig{
			ThreadCount:         threads,
			IterationsPerThread: iterations,
		},
		Output: OutputConfig{
			LogLevel: "error",
		},
		Performance: PerformanceConfig{
			BatchLimit:    batchLimit,
			StatsInterval: time.Second,
		},
	}
}

func counterFromString(t *testing.T, s string) *Counter {
	t.Helper()
	v, ok := new(big.Int).SetString(s, 10)
	require.True(t, ok, "bad test literal %q", s)
	return NewCounter(v)
}

// ==================== COUNTER ====================

func TestCounterHalveIsExact(t *testing.T) {
	cases := []string{
		"2",
		"10",
		"65536",
		"1208925819614629174706176", // 2^80, beyond uint64
	}

	for _, s := range cases {
		c := counterFromString(t, s)
		original := c.Value()

		require.True(t, c.IsEven(), "test value %s must be even", s)
		c.Halve()

		expected := new(big.Int).Rsh(original, 1)
		assert.Zero(t, c.Value().Cmp(expected), "halve(%s)", s)

		// No remainder loss: doubling restores the original
		doubled := new(big.Int).Lsh(c.Value(), 1)
		assert.Zero(t, doubled.Cmp(original))
	}
}

func TestCounterTripleAndIncrement(t *testing.T) {
	cases := []string{
		"1",
		"7",
		"27",
		"2417851639229258349412353", // 2^81 + 1
	}

	for _, s := range cases {
		c := counterFromString(t, s)
		original := c.Value()

		require.False(t, c.IsEven(), "test value %s must be odd", s)
		c.TripleAndIncrement()

		expected := new(big.Int).Mul(original, big.NewInt(3))
		expected.Add(expected, big.NewInt(1))
		assert.Zero(t, c.Value().Cmp(expected), "3*%s+1", s)
	}
}

func TestCounterIncrement(t *testing.T) {
	c := counterFromString(t, "1")
	c.Increment(1)
	assert.Equal(t, "2", c.String())

	c.Increment(999998)
	assert.Equal(t, "1000000", c.String())

	// Increment across the uint64 boundary
	c = counterFromString(t, "18446744073709551615") // 2^64 - 1
	c.Increment(1)
	assert.Equal(t, "18446744073709551616", c.String())
}

func TestCounterParityAndOne(t *testing.T) {
	one := counterFromString(t, "1")
	assert.True(t, one.IsOne())
	assert.False(t, one.IsEven())

	two := counterFromString(t, "2")
	assert.False(t, two.IsOne())
	assert.True(t, two.IsEven())

	huge := counterFromString(t, "1208925819614629174706177") // 2^80 + 1
	assert.False(t, huge.IsOne())
	assert.False(t, huge.IsEven())
}

func TestCounterCopyIsIndependent(t *testing.T) {
	c := counterFromString(t, "42")
	d := c.Copy()

	d.Increment(1)
	assert.Equal(t, "42", c.String())
	assert.Equal(t, "43", d.String())
}

// ==================== VERIFIER ====================

func TestVerifyTerminatesBelowBound(t *testing.T) {
	// Every n below an empirically verified bound must reach 1.
	for n := int64(1); n <= 2000; n++ {
		verifyCollatz(NewCounter(big.NewInt(n)))
	}
}

func TestVerifyBoundaryOne(t *testing.T) {
	// n = 1 terminates immediately with zero Collatz steps.
	c := counterFromString(t, "1")
	verifyCollatz(c)
	assert.Equal(t, "1", c.String())
}

func TestVerifyLeavesCallerUntouched(t *testing.T) {
	c := counterFromString(t, "27") // 111 steps to reach 1
	verifyCollatz(c)
	assert.Equal(t, "27", c.String())
}

func TestVerifyLargeValueTerminates(t *testing.T) {
	// 2^128: collapses to 1 through halving alone.
	c := counterFromString(t, "340282366920938463463374607431768211456")
	verifyCollatz(c)
	assert.Equal(t, "340282366920938463463374607431768211456", c.String())
}

func TestVerifyIsDeterministic(t *testing.T) {
	// Two independently constructed counters with the same seed behave
	// identically: both terminate and neither is mutated.
	a := counterFromString(t, "97")
	b := counterFromString(t, "97")
	verifyCollatz(a)
	verifyCollatz(b)
	assert.Equal(t, a.String(), b.String())
}

// ==================== WORKER ====================

func TestWorkerRunsAssignmentToCompletion(t *testing.T) {
	w := Worker{
		ID:         0,
		Assignment: WorkerAssignment{Start: big.NewInt(10), Count: 3},
	}
	w.Run()

	// The worker's counter is private; the assignment seed is untouched.
	assert.Equal(t, "10", w.Assignment.Start.String())
}

// ==================== BATCH SCHEDULER ====================

func TestPartitionCoversBatchExactly(t *testing.T) {
	// Spec scenario: 2 threads x 3 iterations starting at 10 covers
	// [10, 16) as {10,3} and {13,3}.
	cfg := testConfig(2, 3, 0)
	stats := &Statistics{}
	s := NewBatchScheduler(cfg, big.NewInt(10), stats, nil, newTestLogger())

	batch := BatchRange{Start: big.NewInt(10), Size: cfg.BatchSize()}
	assignments := s.partition(batch)

	require.Len(t, assignments, 2)
	assert.Equal(t, "10", assignments[0].Start.String())
	assert.Equal(t, uint64(3), assignments[0].Count)
	assert.Equal(t, "13", assignments[1].Start.String())
	assert.Equal(t, uint64(3), assignments[1].Count)
	assert.Equal(t, "16", batch.End().String())
}

func TestPartitionHasNoGapsOrOverlap(t *testing.T) {
	// Assignment i starts exactly where assignment i-1 ends, and the last
	// one ends exactly at the batch end, for a start beyond uint64 range.
	cfg := testConfig(5, 7, 0)
	start, ok := new(big.Int).SetString("1180591620717411303424", 10) // 2^70
	require.True(t, ok)

	s := NewBatchScheduler(cfg, start, &Statistics{}, nil, newTestLogger())
	batch := BatchRange{Start: start, Size: cfg.BatchSize()}
	assignments := s.partition(batch)

	require.Len(t, assignments, 5)

	expected := new(big.Int).Set(start)
	width := new(big.Int).SetUint64(cfg.Search.IterationsPerThread)
	total := uint64(0)

	for i, a := range assignments {
		assert.Zero(t, a.Start.Cmp(expected), "assignment %d start", i)
		assert.Equal(t, cfg.Search.IterationsPerThread, a.Count)
		expected.Add(expected, width)
		total += a.Count
	}

	assert.Zero(t, expected.Cmp(batch.End()), "union must end at the batch end")
	assert.Equal(t, cfg.BatchSize(), total)
}

func TestPartitionSeedsAreIndependent(t *testing.T) {
	cfg := testConfig(3, 4, 0)
	s := NewBatchScheduler(cfg, big.NewInt(100), &Statistics{}, nil, newTestLogger())

	assignments := s.partition(BatchRange{Start: big.NewInt(100), Size: cfg.BatchSize()})

	// Mutating one assignment's seed must not affect any other.
	assignments[0].Start.Add(assignments[0].Start, big.NewInt(1000))
	assert.Equal(t, "104", assignments[1].Start.String())
	assert.Equal(t, "108", assignments[2].Start.String())
}

func TestSchedulerAdvancesMonotonically(t *testing.T) {
	// After N batches of size B from S0, the next start is S0 + N*B.
	cfg := testConfig(2, 2, 3)
	stats := &Statistics{}
	s := NewBatchScheduler(cfg, big.NewInt(5), stats, nil, newTestLogger())

	err := s.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "17", s.CurrentStart().String()) // 5 + 3*4

	snapshot := stats.Snapshot()
	assert.Equal(t, uint64(3), snapshot.BatchesCompleted)
	assert.Equal(t, uint64(12), snapshot.NumbersVerified)
	assert.Equal(t, "17", snapshot.CurrentStart)
}

func TestSchedulerSpecScenario(t *testing.T) {
	// thread_count=2, iterations_per_thread=3, start=10: one batch of
	// size 6 covering [10, 16), next batch starts at 16.
	cfg := testConfig(2, 3, 1)
	stats := &Statistics{}
	s := NewBatchScheduler(cfg, big.NewInt(10), stats, nil, newTestLogger())

	err := s.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "16", s.CurrentStart().String())
	assert.Equal(t, uint64(6), stats.Snapshot().NumbersVerified)
}

func TestSchedulerStartsAtOne(t *testing.T) {
	// The very first verification (n=1) terminates immediately.
	cfg := testConfig(1, 1, 1)
	stats := &Statistics{}
	s := NewBatchScheduler(cfg, big.NewInt(1), stats, nil, newTestLogger())

	err := s.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "2", s.CurrentStart().String())
}

func TestSchedulerStopsOnCanceledContext(t *testing.T) {
	cfg := testConfig(2, 2, 0)
	stats := &Statistics{}
	s := NewBatchScheduler(cfg, big.NewInt(5), stats, nil, newTestLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.Run(ctx)
	require.NoError(t, err)

	// Nothing ran: the context is checked before the first batch.
	assert.Equal(t, "5", s.CurrentStart().String())
	assert.Equal(t, uint64(0), stats.Snapshot().BatchesCompleted)
}

func TestSchedulerWritesBatchLog(t *testing.T) {
	dir := t.TempDir()
	outputCfg := &OutputConfig{
		SaveBatchLog:    true,
		SaveStats:       true,
		OutputDirectory: dir,
		FilenamePrefix:  "collatz",
	}

	storage, err := NewStorageManager(outputCfg, newTestLogger())
	require.NoError(t, err)

	cfg := testConfig(2, 3, 2)
	cfg.Output = *outputCfg
	stats := &Statistics{}
	s := NewBatchScheduler(cfg, big.NewInt(10), stats, storage, newTestLogger())

	require.NoError(t, s.Run(context.Background()))
	require.NoError(t, storage.SaveStatistics(stats.Snapshot()))
	require.NoError(t, storage.Close())

	data, err := os.ReadFile(filepath.Join(dir, "collatz_batches.csv"))
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 3) // header + two batches
	assert.Equal(t, "batch,start,end,size,duration_ms,completed_at", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "1,10,16,6,"))
	assert.True(t, strings.HasPrefix(lines[2], "2,16,22,6,"))

	statsData, err := os.ReadFile(filepath.Join(dir, "collatz_stats.json"))
	require.NoError(t, err)
	assert.Contains(t, string(statsData), `"batches_completed": 2`)
	assert.Contains(t, string(statsData), `"numbers_verified": 12`)
}

// ==================== DATA STRUCTURES ====================

func TestBatchRangeEnd(t *testing.T) {
	r := BatchRange{Start: big.NewInt(10), Size: 6}
	assert.Equal(t, "16", r.End().String())

	start, ok := new(big.Int).SetString("36893488147419103232", 10) // 2^65
	require.True(t, ok)
	r = BatchRange{Start: start, Size: 1}
	assert.Equal(t, "36893488147419103233", r.End().String())
}

func TestStatisticsRecordBatch(t *testing.T) {
	stats := &Statistics{}

	stats.RecordBatch("16", 6, 40*time.Millisecond)
	stats.RecordBatch("22", 6, 20*time.Millisecond)

	snapshot := stats.Snapshot()
	assert.Equal(t, uint64(2), snapshot.BatchesCompleted)
	assert.Equal(t, uint64(12), snapshot.NumbersVerified)
	assert.Equal(t, "22", snapshot.CurrentStart)
	assert.Equal(t, 20*time.Millisecond, snapshot.LastBatchTime)
	assert.Equal(t, 30*time.Millisecond, snapshot.AverageBatchTime)
}

// ==================== INPUT PARSING & CONFIG ====================

func TestParsePositiveUint64(t *testing.T) {
	value, err := parsePositiveUint64("8")
	require.NoError(t, err)
	assert.Equal(t, uint64(8), value)

	value, err = parsePositiveUint64(" 1000000 ")
	require.NoError(t, err)
	assert.Equal(t, uint64(1000000), value)

	for _, bad := range []string{"", "abc", "0", "-5", "12a", "1.5", "18446744073709551616"} {
		_, err := parsePositiveUint64(bad)
		assert.Error(t, err, "input %q", bad)
	}
}

func TestParsePositiveBigInt(t *testing.T) {
	value, err := parsePositiveBigInt("295147905179352825856") // 2^68
	require.NoError(t, err)
	assert.Equal(t, "295147905179352825856", value.String())

	for _, bad := range []string{"", "abc", "0", "-5", "+5", "1e10"} {
		_, err := parsePositiveBigInt(bad)
		assert.Error(t, err, "input %q", bad)
	}
}

func TestValidateConfigRejectsBatchSizeOverflow(t *testing.T) {
	cfg := testConfig(1<<33, 1<<33, 0)
	err := validateConfig(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "overflow")
}

func TestValidateConfigRejectsBadLogLevel(t *testing.T) {
	cfg := testConfig(1, 1, 0)
	cfg.Output.LogLevel = "loud"
	require.Error(t, validateConfig(cfg))
}

func TestValidateConfigRejectsBadStartNumber(t *testing.T) {
	cfg := testConfig(1, 1, 0)
	cfg.Search.StartNumber = "12three"
	require.Error(t, validateConfig(cfg))
}

func TestValidateSearchConfig(t *testing.T) {
	valid := SearchConfig{StartNumber: "10", ThreadCount: 2, IterationsPerThread: 3}
	require.NoError(t, validateSearchConfig(&valid))

	cases := []SearchConfig{
		{StartNumber: "10", ThreadCount: 0, IterationsPerThread: 3},
		{StartNumber: "10", ThreadCount: 2, IterationsPerThread: 0},
		{StartNumber: "", ThreadCount: 2, IterationsPerThread: 3},
		{StartNumber: "0", ThreadCount: 2, IterationsPerThread: 3},
		{StartNumber: "10", ThreadCount: math.MaxUint64, IterationsPerThread: 2},
	}
	for i, c := range cases {
		assert.Error(t, validateSearchConfig(&c), "case %d", i)
	}
}

func TestConfigBatchSize(t *testing.T) {
	cfg := testConfig(4, 250000, 0)
	assert.Equal(t, uint64(1000000), cfg.BatchSize())
}

// ==================== BENCHMARKS ====================

func BenchmarkVerifySequence(b *testing.B) {
	c := NewCounter(big.NewInt(27))
	b.ResetTimer()
	for n := 0; n < b.N; n++ {
		verifyCollatz(c)
	}
}

func BenchmarkWorkerScanRange(b *testing.B) {
	w := Worker{
		Assignment: WorkerAssignment{Start: big.NewInt(1), Count: uint64(b.N)},
	}
	b.ResetTimer()
	w.Run()
}
