package eis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBus = errors.New("bus timeout")

// fakeMeter snaps programmed frequencies to whole hertz and returns a
// distinct magnitude per measurement.
type fakeMeter struct {
	mu        sync.Mutex
	calls     []string
	freq      float64
	measured  int
	transient map[int]int // measurement index -> transient failures left
	failOn    map[string]error
	onMeasure func(attempt int)
	attempts  int
}

func (m *fakeMeter) record(call string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, call)
	return m.failOn[call]
}

func (m *fakeMeter) SetACAmplitudeVolts(v float64) error { return m.record("ac") }
func (m *fakeMeter) SetDCBiasVolts(v float64) error      { return m.record("bias") }
func (m *fakeMeter) EnableBias() error                   { return m.record("bias on") }
func (m *fakeMeter) DisableBias() error                  { return m.record("bias off") }

func (m *fakeMeter) SetFrequencyHz(f float64) error {
	if err := m.record("freq"); err != nil {
		return err
	}
	m.freq = float64(int(f))
	return nil
}

func (m *fakeMeter) FrequencyHz() (float64, error) {
	return m.freq, m.record("freq?")
}

func (m *fakeMeter) MeasureImpedance() (float64, float64, error) {
	if err := m.record("measure"); err != nil {
		return 0, 0, err
	}
	m.attempts++
	if m.onMeasure != nil {
		m.onMeasure(m.attempts)
	}
	if m.transient[m.measured] > 0 {
		m.transient[m.measured]--
		return 0, 0, Transient("fetch", errBus)
	}
	m.measured++
	return float64(m.measured) * 10, -45, nil
}

func (m *fakeMeter) count(call string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c == call {
			n++
		}
	}
	return n
}

type collector struct {
	mu      sync.Mutex
	samples []ImpedanceSample
	after   func(n int)
}

func (c *collector) Accept(s ImpedanceSample) error {
	c.mu.Lock()
	c.samples = append(c.samples, s)
	n := len(c.samples)
	c.mu.Unlock()
	if c.after != nil {
		c.after(n)
	}
	return nil
}

var exampleConfig = SweepConfig{
	SampleID:              "cell-7",
	StartFrequency:        100000,
	EndFrequency:          20,
	PointsPerDecade:       10,
	ACAmplitudeMillivolts: 10,
	DCBias:                1.5,
}

func fastProcedure(m Meter) *Procedure {
	return NewProcedure(m, WithSettleDelay(0), WithRetryPolicy(RetryPolicy{MaxRetries: 3}))
}

func TestExecuteCompletesExampleSweep(t *testing.T) {
	m := &fakeMeter{}
	sink := &collector{}
	p := fastProcedure(m)

	run, err := p.Start(context.Background(), exampleConfig, sink)
	require.NoError(t, err)
	require.NoError(t, run.Wait())

	assert.Equal(t, Completed, run.State())
	require.Len(t, sink.samples, 30)
	plan, err := exampleConfig.Plan()
	require.NoError(t, err)
	for i, s := range sink.samples {
		assert.Equal(t, float64(i+1)*10, s.MagnitudeOhm, "sample %d out of order", i)
		assert.Equal(t, float64(int(plan[i])), s.FrequencyHz, "sample %d should carry the reported frequency", i)
	}
	emitted, planned := run.Progress()
	assert.Equal(t, 30, emitted)
	assert.Equal(t, 30, planned)
	assert.Equal(t, []string{"ac", "bias", "bias on", "freq"}, m.calls[:4])
	assert.Zero(t, m.count("bias off"))
}

func TestExecuteCancelAfterKPoints(t *testing.T) {
	for _, k := range []int{1, 4, 30} {
		t.Run(fmt.Sprint(k), func(t *testing.T) {
			m := &fakeMeter{}
			var cancel CancelFlag
			sink := &collector{after: func(n int) {
				if n == k {
					cancel.Cancel()
				}
			}}
			err := fastProcedure(m).Execute(context.Background(), exampleConfig, sink, &cancel)
			require.NoError(t, err)
			assert.Len(t, sink.samples, k)
			assert.Equal(t, k, m.count("measure"))
			assert.Equal(t, k, m.count("freq"))
			assert.Equal(t, "freq?", m.calls[len(m.calls)-1])
		})
	}
}

func TestRunRequestCancel(t *testing.T) {
	m := &fakeMeter{}
	var run *Run
	ready := make(chan struct{})
	sink := &collector{after: func(n int) {
		if n == 2 {
			<-ready
			run.RequestCancel()
		}
	}}
	run, err := fastProcedure(m).Start(context.Background(), exampleConfig, sink)
	require.NoError(t, err)
	close(ready)
	require.NoError(t, run.Wait())
	assert.Equal(t, Aborted, run.State())
	assert.True(t, run.IsCancelled())
	assert.Len(t, sink.samples, 2)
}

func TestExecuteContextCancelAborts(t *testing.T) {
	m := &fakeMeter{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sink := &collector{after: func(n int) {
		if n == 1 {
			cancel()
		}
	}}
	p := NewProcedure(m, WithSettleDelay(time.Hour))
	run, err := p.Start(ctx, exampleConfig, sink)
	require.NoError(t, err)
	select {
	case <-run.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("settle delay not interrupted by context cancellation")
	}
	assert.Equal(t, Aborted, run.State())
	assert.Len(t, sink.samples, 1)
}

func TestExecuteRetriesTransientFailures(t *testing.T) {
	m := &fakeMeter{transient: map[int]int{5: 2}}
	sink := &collector{}
	err := fastProcedure(m).Execute(context.Background(), exampleConfig, sink, nil)
	require.NoError(t, err)
	assert.Len(t, sink.samples, 30)
	assert.Equal(t, 32, m.count("measure"))
	assert.Equal(t, 30, m.count("freq"))
	assert.Equal(t, 60.0, sink.samples[5].MagnitudeOhm)
}

func TestExecuteRetriesExhausted(t *testing.T) {
	m := &fakeMeter{transient: map[int]int{2: 10}}
	sink := &collector{}
	err := fastProcedure(m).Execute(context.Background(), exampleConfig, sink, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRetriesExhausted)
	assert.ErrorIs(t, err, errBus)
	assert.False(t, IsTransient(err))
	assert.Len(t, sink.samples, 2, "samples emitted before the failure are kept")
	assert.Equal(t, 2+4, m.count("measure"))
}

func TestExecuteCancelDuringRetry(t *testing.T) {
	var cancel CancelFlag
	m := &fakeMeter{
		transient: map[int]int{0: 100},
		onMeasure: func(attempt int) {
			if attempt == 3 {
				cancel.Cancel()
			}
		},
	}
	p := NewProcedure(m, WithSettleDelay(0), WithRetryPolicy(RetryPolicy{MaxRetries: 1000}))
	sink := &collector{}
	require.NoError(t, p.Execute(context.Background(), exampleConfig, sink, &cancel))
	assert.Empty(t, sink.samples)
	assert.Equal(t, 3, m.count("measure"))
}

func TestExecuteFailures(t *testing.T) {
	fatal := errors.New("no listener")
	tests := []struct {
		name      string
		cfg       SweepConfig
		failOn    map[string]error
		wantCalls int
		check     func(t *testing.T, err error)
	}{
		{
			name: "config error before any I/O",
			cfg:  SweepConfig{StartFrequency: 1000, EndFrequency: 1000, PointsPerDecade: 10},
			check: func(t *testing.T, err error) {
				var ce *ConfigError
				assert.ErrorAs(t, err, &ce)
			},
		},
		{
			name: "plan too short",
			cfg:  SweepConfig{StartFrequency: 1000, EndFrequency: 500, PointsPerDecade: 10},
			check: func(t *testing.T, err error) {
				var ce *ConfigError
				assert.ErrorAs(t, err, &ce)
			},
		},
		{
			name:      "amplitude rejected",
			cfg:       exampleConfig,
			failOn:    map[string]error{"ac": fatal},
			wantCalls: 1,
			check: func(t *testing.T, err error) {
				var ie *InstrumentError
				require.ErrorAs(t, err, &ie)
				assert.Equal(t, "set ac amplitude", ie.Op)
				assert.ErrorIs(t, err, fatal)
			},
		},
		{
			name:      "bias rejected",
			cfg:       exampleConfig,
			failOn:    map[string]error{"bias": fatal},
			wantCalls: 2,
			check:     func(t *testing.T, err error) { assert.ErrorIs(t, err, fatal) },
		},
		{
			name:      "fatal measurement",
			cfg:       exampleConfig,
			failOn:    map[string]error{"measure": Fatal("fetch", fatal)},
			wantCalls: 5,
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, fatal)
				assert.False(t, IsTransient(err))
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &fakeMeter{failOn: tt.failOn}
			run, err := fastProcedure(m).Start(context.Background(), tt.cfg, &collector{})
			require.NoError(t, err)
			err = run.Wait()
			require.Error(t, err)
			tt.check(t, err)
			assert.Equal(t, Failed, run.State())
			assert.Len(t, m.calls, tt.wantCalls)
		})
	}
}

func TestExecuteSinkError(t *testing.T) {
	full := errors.New("disk full")
	n := 0
	sink := SinkFunc(func(ImpedanceSample) error {
		n++
		if n == 3 {
			return full
		}
		return nil
	})
	err := fastProcedure(&fakeMeter{}).Execute(context.Background(), exampleConfig, sink, nil)
	assert.ErrorIs(t, err, full)
	assert.Equal(t, 3, n)
}

func TestProcedureIsExclusive(t *testing.T) {
	m := &fakeMeter{}
	release := make(chan struct{})
	sink := &collector{after: func(int) { <-release }}
	p := fastProcedure(m)
	run, err := p.Start(context.Background(), exampleConfig, sink)
	require.NoError(t, err)

	_, err = p.Start(context.Background(), exampleConfig, &collector{})
	assert.ErrorIs(t, err, ErrBusy)
	assert.ErrorIs(t, p.Execute(context.Background(), exampleConfig, &collector{}, nil), ErrBusy)

	run.RequestCancel()
	close(release)
	require.NoError(t, run.Wait())
	assert.Equal(t, Aborted, run.State())
}

func TestStartAfterWaitIsNeverBusy(t *testing.T) {
	p := fastProcedure(&fakeMeter{})
	for i := 0; i < 500; i++ {
		run, err := p.Start(context.Background(), exampleConfig, &collector{})
		require.NoError(t, err, "start %d", i)
		require.NoError(t, run.Wait())
		require.Equal(t, Completed, run.State())
	}
	require.NoError(t, p.Execute(context.Background(), exampleConfig, &collector{}, nil))
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "sweeping", Sweeping.String())
	assert.Equal(t, "State(42)", State(42).String())
	assert.True(t, Aborted.Terminal())
	assert.False(t, Armed.Terminal())
}
