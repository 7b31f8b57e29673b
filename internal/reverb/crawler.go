package reverb

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/schollz/progressbar/v3"

	"github.com/media-luna/reverb/internal/codec"
	"github.com/media-luna/reverb/internal/database"
	"github.com/media-luna/reverb/internal/fingerprint"
	"github.com/media-luna/reverb/utils/logger"
)

// crawlResult is what one worker hands back to the driver.
type crawlResult struct {
	path   string
	name   string
	sha1   string
	hashes []fingerprint.Hash
	err    error
}

// Crawl ingests every supported file under the configured target
// directory. Files whose content SHA-1 is already indexed are skipped;
// a file that fails to decode is logged and skipped, never retried.
// Cancelling the context stops dispatching new files; in-flight workers
// finish their current one.
func (r *Reverb) Crawl(ctx context.Context) error {
	// Reclaim crash residue first. A failure here usually means the
	// schema does not exist yet.
	if err := r.db.DeleteUnfingerprinted(); err != nil {
		logger.Warn("uninitialized index, applying DDL")
		if err := r.db.Setup(); err != nil {
			return fmt.Errorf("failed to set up index schema: %w", err)
		}
		if err := r.db.DeleteUnfingerprinted(); err != nil {
			return fmt.Errorf("failed to prune unfingerprinted audios: %w", err)
		}
	}

	files, err := codec.FindFiles(r.cfg.Crawler.TargetDir, r.cfg.Crawler.SupportedExtensions)
	if err != nil {
		return err
	}

	known, err := r.loadFingerprintedHashes()
	if err != nil {
		return err
	}

	var todo []codec.File
	for _, f := range files {
		sha, err := codec.HashFile(f.Path)
		if err != nil {
			logger.Errorf("failed to hash %s: %v", f.Path, err)
			continue
		}
		if known[sha] {
			logger.Infof("%s already fingerprinted, skipping", f.Path)
			continue
		}
		todo = append(todo, f)
	}

	if len(todo) == 0 {
		logger.Info("index is up to date")
		return nil
	}
	logger.Infof("started crawling session: %d files to parse", len(todo))

	workers := r.workerCount()
	jobs := make(chan codec.File)
	results := make(chan crawlResult)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for f := range jobs {
				results <- r.fingerprintFile(f)
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, f := range todo {
			select {
			case jobs <- f:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	bar := progressbar.Default(int64(len(todo)), "fingerprinting")
	defer bar.Finish()

	for res := range results {
		bar.Add(1)

		if res.err != nil {
			logger.Errorf("failed to fingerprint %s: %v", res.path, res.err)
			continue
		}
		// Two files in this crawl can carry identical bytes; the sha1
		// set is reloaded after every commit so the copy is skipped.
		if known[res.sha1] {
			logger.Infof("%s already fingerprinted, skipping", res.path)
			continue
		}

		if err := r.commit(res); err != nil {
			logger.Error(err)
			continue
		}

		if refreshed, err := r.loadFingerprintedHashes(); err == nil {
			known = refreshed
		}
	}

	return ctx.Err()
}

// RunSession is the unattended crawl entrypoint. It compares the file
// storage against the index and recovers from storage corruption by
// rebuilding the index from scratch.
func (r *Reverb) RunSession(ctx context.Context) error {
	numIndexed := 0
	if err := r.db.DeleteUnfingerprinted(); err != nil {
		logger.Warn("uninitialized index, applying DDL")
		if err := r.db.Setup(); err != nil {
			return fmt.Errorf("failed to set up index schema: %w", err)
		}
	} else {
		n, err := r.db.GetNumAudios()
		if err != nil {
			return err
		}
		numIndexed = n
	}

	files, err := codec.FindFiles(r.cfg.Crawler.TargetDir, r.cfg.Crawler.SupportedExtensions)
	if err != nil {
		return err
	}

	switch {
	case len(files) > numIndexed:
		return r.Crawl(ctx)
	case len(files) < numIndexed:
		logger.Errorf("file storage corruption: expected at most %d indexed audios, got %d", len(files), numIndexed)
		if err := r.db.Empty(); err != nil {
			return fmt.Errorf("failed to rebuild index: %w", err)
		}
		return r.Crawl(ctx)
	default:
		logger.Info("index is up to date")
		return nil
	}
}

// commit is the three-step registration of one fingerprinted file. The
// audio stays fingerprinted=0 until the last hash batch is durable, so
// a crash in between is reclaimed on the next startup.
func (r *Reverb) commit(res crawlResult) error {
	audioID, err := r.db.InsertAudio(res.name, res.sha1, len(res.hashes))
	if err != nil {
		return fmt.Errorf("failed to register %s: %w", res.name, err)
	}
	if err := r.db.InsertHashes(audioID, res.hashes, database.DefaultBatchSize); err != nil {
		return fmt.Errorf("failed to store hashes for %s: %w", res.name, err)
	}
	if err := r.db.SetAudioFingerprinted(audioID); err != nil {
		return fmt.Errorf("failed to finalize %s: %w", res.name, err)
	}
	logger.Infof("fingerprinted %s: %d hashes", res.name, len(res.hashes))
	return nil
}

// fingerprintFile runs the decode -> fingerprint pipeline for one file.
func (r *Reverb) fingerprintFile(f codec.File) crawlResult {
	record, err := codec.ReadFile(f.Path, r.cfg.Crawler.FingerprintLimit)
	if err != nil {
		return crawlResult{path: f.Path, err: err}
	}
	return crawlResult{
		path:   f.Path,
		name:   record.Name,
		sha1:   record.SHA1,
		hashes: unionFingerprints(record.Channels, r.params),
	}
}

// loadFingerprintedHashes returns the SHA-1 set of committed audios.
func (r *Reverb) loadFingerprintedHashes() (map[string]bool, error) {
	audios, err := r.db.GetAudios()
	if err != nil {
		return nil, fmt.Errorf("failed to load fingerprinted audios: %w", err)
	}
	known := make(map[string]bool, len(audios))
	for _, a := range audios {
		known[a.SHA1] = true
	}
	return known, nil
}

func (r *Reverb) workerCount() int {
	n := runtime.NumCPU()
	if max := r.cfg.Crawler.MaxWorkers; max > 0 && max < n {
		n = max
	}
	if n < 1 {
		n = 1
	}
	return n
}
