package services

import (
	"context"
	"fmt"
	"math"

	"gorm.io/gorm"

	"github.com/NREL/torc-sub002/internal/apierr"
	"github.com/NREL/torc-sub002/internal/logger"
	"github.com/NREL/torc-sub002/internal/repos"
	"github.com/NREL/torc-sub002/internal/types"
	"github.com/NREL/torc-sub002/internal/utils"
)

type SortMethod string

const (
	SortNone              SortMethod = "none"
	SortGpusRuntimeMemory SortMethod = "gpus_runtime_memory"
	SortGpusMemoryRuntime SortMethod = "gpus_memory_runtime"
)

func ParseSortMethod(s string) (SortMethod, error) {
	switch SortMethod(s) {
	case "", SortNone:
		return SortNone, nil
	case SortGpusRuntimeMemory:
		return SortGpusRuntimeMemory, nil
	case SortGpusMemoryRuntime:
		return SortGpusMemoryRuntime, nil
	}
	return "", fmt.Errorf("unknown sort method %q", s)
}

// orderClause returns the candidate ordering. The trailing id ASC tie-break
// is part of the contract: it makes the order stable across calls.
func (m SortMethod) orderClause() string {
	switch m {
	case SortGpusRuntimeMemory:
		return "num_gpus DESC, runtime_s DESC, memory_bytes DESC, job.id ASC"
	case SortGpusMemoryRuntime:
		return "num_gpus DESC, memory_bytes DESC, runtime_s DESC, job.id ASC"
	default:
		return "job.id ASC"
	}
}

const (
	ReasonClaimed           = "claimed"
	ReasonNoReadyJobs       = "no ready jobs"
	ReasonNoJobsFit         = "no jobs fit resources"
	ReasonSchedulerMismatch = "scheduler mismatch"
)

type ClaimResult struct {
	Jobs   []types.Job `json:"jobs"`
	Reason string      `json:"reason"`
}

type ClaimService interface {
	ClaimNextJobs(ctx context.Context, workflowID int64, limit int) (*ClaimResult, error)
	ClaimJobsBasedOnResources(ctx context.Context, workflowID int64, resources types.ComputeNodesResources, limit int, sortMethod SortMethod, strictSchedulerMatch bool) (*ClaimResult, error)
}

type claimService struct {
	db   *gorm.DB
	jobs repos.JobRepo
	log  *logger.Logger
}

func NewClaimService(db *gorm.DB, jobs repos.JobRepo, baseLog *logger.Logger) ClaimService {
	return &claimService{db: db, jobs: jobs, log: baseLog.With("service", "ClaimService")}
}

// ClaimNextJobs hands out ready jobs in submission order with no resource
// accounting: no sort, infinite budget, limit from the caller.
func (s *claimService) ClaimNextJobs(ctx context.Context, workflowID int64, limit int) (*ClaimResult, error) {
	budget := budget{
		cpus:  math.MaxInt32,
		gpus:  math.MaxInt32,
		nodes: math.MaxInt32,
		mem:   math.MaxInt64,
	}
	return s.claim(ctx, workflowID, budget, limit, SortNone, nil)
}

func (s *claimService) ClaimJobsBasedOnResources(ctx context.Context, workflowID int64, resources types.ComputeNodesResources, limit int, sortMethod SortMethod, strictSchedulerMatch bool) (*ClaimResult, error) {
	b := budget{
		cpus:  resources.NumCPUs,
		gpus:  resources.NumGPUs,
		nodes: resources.NumNodes,
		mem:   int64(math.Round(resources.MemoryGB * float64(1<<30))),
	}
	if resources.TimeLimit != nil {
		seconds, err := utils.ParseISO8601Duration(*resources.TimeLimit)
		if err != nil {
			return nil, apierr.BadRequest("invalid time_limit: %v", err)
		}
		b.timeS = &seconds
	}
	var schedulerID *int64
	if strictSchedulerMatch && resources.SchedulerConfigID != nil {
		schedulerID = resources.SchedulerConfigID
	}
	return s.claim(ctx, workflowID, b, limit, sortMethod, schedulerID)
}

type budget struct {
	cpus  int
	gpus  int
	nodes int
	mem   int64
	timeS *int64
}

func (b *budget) fits(row repos.JobWithRequirements) bool {
	if row.NumCPUs > b.cpus || row.NumGPUs > b.gpus || row.NumNodes > b.nodes || row.MemoryBytes > b.mem {
		return false
	}
	if b.timeS != nil && row.RuntimeS > *b.timeS {
		return false
	}
	return true
}

func (b *budget) subtract(row repos.JobWithRequirements) {
	b.cpus -= row.NumCPUs
	b.gpus -= row.NumGPUs
	b.nodes -= row.NumNodes
	b.mem -= row.MemoryBytes
}

// claim runs the whole selection inside one write transaction. Each
// selected job is moved Ready -> Pending with a conditional update; rows a
// concurrent claimer took first fall out of the returned set.
func (s *claimService) claim(ctx context.Context, workflowID int64, b budget, limit int, sortMethod SortMethod, schedulerID *int64) (*ClaimResult, error) {
	if limit <= 0 {
		limit = 1
	}
	result := &ClaimResult{Jobs: []types.Job{}}
	err := s.db.Transaction(func(tx *gorm.DB) error {
		candidates, err := s.jobs.ReadyWithRequirements(ctx, tx, workflowID, sortMethod.orderClause())
		if err != nil {
			return err
		}
		if len(candidates) == 0 {
			result.Reason = ReasonNoReadyJobs
			return nil
		}
		if schedulerID != nil {
			eligible := candidates[:0]
			for _, row := range candidates {
				if row.SchedulerID != nil && *row.SchedulerID == *schedulerID {
					eligible = append(eligible, row)
				}
			}
			candidates = eligible
			if len(candidates) == 0 {
				result.Reason = ReasonSchedulerMismatch
				return nil
			}
		}
		var selected []repos.JobWithRequirements
		for _, row := range candidates {
			if len(selected) == limit {
				break
			}
			if !b.fits(row) {
				continue
			}
			b.subtract(row)
			selected = append(selected, row)
		}
		if len(selected) == 0 {
			result.Reason = ReasonNoJobsFit
			return nil
		}
		// Returned jobs keep the selection order; rows lost to a
		// concurrent claimer drop out.
		for _, row := range selected {
			ok, err := s.jobs.UpdateStatusIf(ctx, tx, row.ID, types.JobReady, types.JobPending)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			job := row.Job
			job.Status = types.JobPending
			result.Jobs = append(result.Jobs, job)
		}
		result.Reason = ReasonClaimed
		return nil
	})
	if err != nil {
		return nil, wrapDB(err)
	}
	return result, nil
}
