package scheduler

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tst "github.com/meridian-energy/meridian/internal/testing"
)

type countingJob struct {
	name string
	runs int
	err  error
}

func (j *countingJob) Name() string { return j.name }
func (j *countingJob) Run() error {
	j.runs++
	return j.err
}

func TestScheduler_AddJobRejectsBadSchedule(t *testing.T) {
	s := New(zerolog.Nop())
	err := s.AddJob("not a schedule", &countingJob{name: "bad"})
	require.Error(t, err)
}

func TestScheduler_RunNow(t *testing.T) {
	s := New(zerolog.Nop())
	job := &countingJob{name: "manual"}

	require.NoError(t, s.RunNow(job))
	assert.Equal(t, 1, job.runs)

	job.err = errors.New("boom")
	assert.Error(t, s.RunNow(job))
	assert.Equal(t, 2, job.runs)
}

func TestMaintenanceJob_Run(t *testing.T) {
	db, cleanup := tst.NewTestDB(t, "results")
	defer cleanup()

	job := NewMaintenanceJob(db, zerolog.Nop())
	assert.Equal(t, "db_maintenance", job.Name())
	require.NoError(t, job.Run())
}
