package compliance

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	utilerrors "k8s.io/apimachinery/pkg/util/errors"

	"github.com/stolostron/release-tools/pkg/api"
)

// ScanReleases fans a scan out over several releases, bounded by
// maxConcurrency, writing one CSV per release into outputDir. The per-release
// files are independent and no ordering between the parallel scans is
// guaranteed.
func ScanReleases(ctx context.Context, scanner *Scanner, releases []api.Release, outputDir string, maxConcurrency int, logger *logrus.Entry) error {
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory %s: %w", outputDir, err)
	}

	var errs []error
	errLock := &sync.Mutex{}
	sem := semaphore.NewWeighted(int64(maxConcurrency))
	for _, release := range releases {
		if err := sem.Acquire(ctx, 1); err != nil {
			errLock.Lock()
			errs = append(errs, fmt.Errorf("failed to acquire semaphore: %w", err))
			errLock.Unlock()
			break
		}
		go func(release api.Release) {
			defer sem.Release(1)
			if err := scanOne(ctx, scanner, release, outputDir, logger); err != nil {
				errLock.Lock()
				errs = append(errs, err)
				errLock.Unlock()
			}
		}(release)
	}
	if err := sem.Acquire(ctx, int64(maxConcurrency)); err != nil {
		// Workers may still be in flight when the wait is cancelled, so the
		// final append and the aggregate read need the lock too.
		errLock.Lock()
		defer errLock.Unlock()
		errs = append(errs, fmt.Errorf("failed to wait for scans: %w", err))
	}
	return utilerrors.NewAggregate(errs)
}

func scanOne(ctx context.Context, scanner *Scanner, release api.Release, outputDir string, logger *logrus.Entry) error {
	logger = logger.WithField("application", release.Application)
	records, err := scanner.Scan(ctx, release.Application)
	if err != nil {
		return fmt.Errorf("scan of %s failed: %w", release.Application, err)
	}
	path := filepath.Join(outputDir, fmt.Sprintf("compliance-%s.csv", release.Application))
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report %s: %w", path, err)
	}
	defer file.Close()
	if err := WriteCSV(file, records); err != nil {
		return fmt.Errorf("failed to write report %s: %w", path, err)
	}
	logger.WithField("report", path).Infof("Scanned %d components.", len(records))
	return nil
}
