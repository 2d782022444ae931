package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"

	"gorm.io/gorm"

	"github.com/NREL/torc-sub002/internal/repos"
	"github.com/NREL/torc-sub002/internal/types"
)

// jobInputBundle is the canonical object whose SHA-256 is a job's input
// hash. Field order is the wire key order; absent scalars serialize as
// null and empty lists as [].
type jobInputBundle struct {
	Command               string            `json:"command"`
	InvocationScript      *string           `json:"invocation_script"`
	DependsOnJobIDs       []int64           `json:"depends_on_job_ids"`
	InputFileIDs          []int64           `json:"input_file_ids"`
	OutputFileIDs         []int64           `json:"output_file_ids"`
	InputUserDataIDs      []int64           `json:"input_user_data_ids"`
	OutputUserDataIDs     []int64           `json:"output_user_data_ids"`
	InputUserDataContents []userDataContent `json:"input_user_data_contents"`
}

type userDataContent struct {
	ID   int64           `json:"id"`
	Data json.RawMessage `json:"data"`
}

func sortedCopy(ids []int64) []int64 {
	out := make([]int64, len(ids))
	copy(out, ids)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// computeJobInputHash loads the job's relation sets and input user-data
// contents and digests the canonical bundle.
func computeJobInputHash(ctx context.Context, tx *gorm.DB, jobRepo repos.JobRepo, userDataRepo repos.UserDataRepo, job *types.Job) (string, error) {
	loaded := *job
	if err := jobRepo.LoadRelationships(ctx, tx, &loaded); err != nil {
		return "", err
	}
	bundle := jobInputBundle{
		Command:               loaded.Command,
		InvocationScript:      loaded.InvocationScript,
		DependsOnJobIDs:       sortedCopy(loaded.DependsOn),
		InputFileIDs:          sortedCopy(loaded.InputFileIDs),
		OutputFileIDs:         sortedCopy(loaded.OutputFileIDs),
		InputUserDataIDs:      sortedCopy(loaded.InputUserDataIDs),
		OutputUserDataIDs:     sortedCopy(loaded.OutputUserDataIDs),
		InputUserDataContents: []userDataContent{},
	}
	if bundle.DependsOnJobIDs == nil {
		bundle.DependsOnJobIDs = []int64{}
	}
	if bundle.InputFileIDs == nil {
		bundle.InputFileIDs = []int64{}
	}
	if bundle.OutputFileIDs == nil {
		bundle.OutputFileIDs = []int64{}
	}
	if bundle.InputUserDataIDs == nil {
		bundle.InputUserDataIDs = []int64{}
	}
	if bundle.OutputUserDataIDs == nil {
		bundle.OutputUserDataIDs = []int64{}
	}
	records, err := userDataRepo.GetByIDs(ctx, tx, bundle.InputUserDataIDs)
	if err != nil {
		return "", err
	}
	for _, rec := range records {
		content := userDataContent{ID: rec.ID, Data: json.RawMessage("null")}
		if len(rec.Data) > 0 {
			content.Data = json.RawMessage(rec.Data)
		}
		bundle.InputUserDataContents = append(bundle.InputUserDataContents, content)
	}
	raw, err := json.Marshal(bundle)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}
