package db

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"sort"
	"sync"

	"drilltrack/internal/survey"

	"go.etcd.io/bbolt"
)

const (
	RunsBucket   = "survey_runs"
	PointsBucket = "survey_points"
)

// SurveyDB stores survey runs and points in a bbolt file. Points live in one
// nested bucket per run under PointsBucket.
type SurveyDB struct {
	db         *bbolt.DB
	mu         sync.RWMutex
	serializer Serializer
}

// Config содержит конфигурацию для SurveyDB
type Config struct {
	Path       string
	FileMode   os.FileMode
	Options    *bbolt.Options
	Serializer Serializer
}

// NewSurveyDB открывает базу и создает корневые buckets
func NewSurveyDB(cfg Config) (*SurveyDB, error) {
	if cfg.Serializer == nil {
		cfg.Serializer = &JSONSerializer{}
	}

	if cfg.FileMode == 0 {
		cfg.FileMode = 0666
	}

	db, err := bbolt.Open(cfg.Path, cfg.FileMode, cfg.Options)
	if err != nil {
		return nil, err
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{RunsBucket, PointsBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return &SurveyDB{
		db:         db,
		serializer: cfg.Serializer,
	}, nil
}

func (sdb *SurveyDB) Close() error {
	if sdb.db == nil {
		return ErrNilDB
	}
	return sdb.db.Close()
}

// InsertRun сохраняет run и возвращает его id
func (sdb *SurveyDB) InsertRun(ctx context.Context, run survey.Run) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := run.Validate(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	sdb.mu.Lock()
	defer sdb.mu.Unlock()

	var id int64
	err := sdb.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(RunsBucket))
		if bucket == nil {
			return ErrBucketNotFound
		}

		var err error
		id, err = allocateID(bucket, run.ID)
		if err != nil {
			return err
		}

		run.ID = &id
		data, err := sdb.serializer.Serialize(run)
		if err != nil {
			return err
		}
		return bucket.Put(itob(id), data)
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// InsertPoint сохраняет точку в bucket ее run
func (sdb *SurveyDB) InsertPoint(ctx context.Context, p survey.Point) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if p.RunID == nil {
		return 0, fmt.Errorf("%w: point has no run id", ErrInvalidInput)
	}

	sdb.mu.Lock()
	defer sdb.mu.Unlock()

	var id int64
	err := sdb.db.Update(func(tx *bbolt.Tx) error {
		runs := tx.Bucket([]byte(RunsBucket))
		root := tx.Bucket([]byte(PointsBucket))
		if runs == nil || root == nil {
			return ErrBucketNotFound
		}
		if runs.Get(itob(*p.RunID)) == nil {
			return fmt.Errorf("%w: %d", ErrRunNotFound, *p.RunID)
		}

		// point ids are global, the sequence lives on the root bucket
		var err error
		id, err = allocateID(root, p.ID)
		if err != nil {
			return err
		}
		if pointExists(root, id) {
			return fmt.Errorf("%w: point %d", ErrConflict, id)
		}

		bucket, err := root.CreateBucketIfNotExists(itob(*p.RunID))
		if err != nil {
			return err
		}

		p.ID = &id
		data, err := sdb.serializer.Serialize(p)
		if err != nil {
			return err
		}
		return bucket.Put(itob(id), data)
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// ListRuns возвращает все runs по возрастанию id
func (sdb *SurveyDB) ListRuns(ctx context.Context) ([]survey.Run, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	runs := []survey.Run{}

	sdb.mu.RLock()
	defer sdb.mu.RUnlock()

	err := sdb.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(RunsBucket))
		if bucket == nil {
			return nil
		}

		// big-endian keys iterate in id order
		return bucket.ForEach(func(k, v []byte) error {
			var run survey.Run
			if err := sdb.serializer.Deserialize(v, &run); err != nil {
				return err
			}
			runs = append(runs, run)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return runs, nil
}

// ListPoints возвращает точки run, отсортированные по глубине
func (sdb *SurveyDB) ListPoints(ctx context.Context, runID int64) ([]survey.Point, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	points := []survey.Point{}

	sdb.mu.RLock()
	defer sdb.mu.RUnlock()

	err := sdb.db.View(func(tx *bbolt.Tx) error {
		root := tx.Bucket([]byte(PointsBucket))
		if root == nil {
			return nil
		}
		bucket := root.Bucket(itob(runID))
		if bucket == nil {
			return nil
		}

		return bucket.ForEach(func(k, v []byte) error {
			var p survey.Point
			if err := sdb.serializer.Deserialize(v, &p); err != nil {
				return err
			}
			points = append(points, p)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(points, func(i, j int) bool {
		return points[i].Depth < points[j].Depth
	})
	return points, nil
}

// allocateID returns the requested id, or the next value of the bucket
// sequence when none was requested. Requested ids push the sequence forward
// so later generated ids do not collide with them.
func allocateID(bucket *bbolt.Bucket, requested *int64) (int64, error) {
	if requested == nil {
		seq, err := bucket.NextSequence()
		if err != nil {
			return 0, err
		}
		return int64(seq), nil
	}

	id := *requested
	if id <= 0 {
		return 0, fmt.Errorf("%w: id must be positive", ErrInvalidInput)
	}
	if bucket.Get(itob(id)) != nil {
		return 0, fmt.Errorf("%w: id %d", ErrConflict, id)
	}
	if uint64(id) > bucket.Sequence() {
		if err := bucket.SetSequence(uint64(id)); err != nil {
			return 0, err
		}
	}
	return id, nil
}

func pointExists(root *bbolt.Bucket, id int64) bool {
	key := itob(id)
	found := false
	_ = root.ForEachBucket(func(k []byte) error {
		if b := root.Bucket(k); b != nil && b.Get(key) != nil {
			found = true
		}
		return nil
	})
	return found
}

func itob(v int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(v))
	return b
}
