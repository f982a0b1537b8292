package db

import (
	"context"

	"drilltrack/internal/survey"
)

// SurveyStorage определяет интерфейс хранилища runs и точек
type SurveyStorage interface {
	InsertRun(ctx context.Context, run survey.Run) (int64, error)
	InsertPoint(ctx context.Context, p survey.Point) (int64, error)
	ListRuns(ctx context.Context) ([]survey.Run, error)
	ListPoints(ctx context.Context, runID int64) ([]survey.Point, error)
	Close() error
}

var _ SurveyStorage = (*SurveyDB)(nil)
