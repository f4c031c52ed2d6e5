package scheduler

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const TaskEnhancementRun = "enhancements.run"

type EnhancementRunPayload struct {
	TaskID string `json:"taskId"`
	Kind   string `json:"kind"`
}

func NewEnhancementRunTask(payload EnhancementRunPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskEnhancementRun, data), nil
}

func ParseEnhancementRunPayload(task *asynq.Task) (EnhancementRunPayload, error) {
	var payload EnhancementRunPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return EnhancementRunPayload{}, err
	}
	return payload, nil
}
