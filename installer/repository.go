package installer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/joncooperworks/pluginstall/artifact"
)

// ErrNotInRepository is returned when a requested plugin is missing from a repository listing.
var ErrNotInRepository = errors.New("plugin not found in repository")

// InstallFromRepository installs the named plugins from the listing at repoURL. Plugins install
// concurrently and independently; one failure does not stop the others. The returned map holds
// every successful install and the error joins every failure.
func (i *Installer) InstallFromRepository(ctx context.Context, repoURL string, names ...string) (map[string]*InstallResult, error) {
	if len(names) == 0 {
		return nil, errors.New("no plugins requested")
	}

	listing, err := i.fetcher.FetchRepository(ctx, repoURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch repository listing: %w", err)
	}

	byName := make(map[string]artifact.RepoPlugin, len(listing))
	for _, p := range listing {
		byName[p.InternalName] = p
	}

	requests := make(map[string]InstallRequest, len(names))
	for _, name := range names {
		p, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrNotInRepository, name)
		}
		requests[name] = InstallRequest{
			InternalName: name,
			URL:          p.DownloadLinkInstall,
			RepoURL:      repoURL,
		}
	}

	var (
		mu      sync.Mutex
		results = make(map[string]*InstallResult, len(requests))
		failed  = make(map[string]error)
		g       errgroup.Group
	)
	g.SetLimit(i.concurrency)

	for name, req := range requests {
		name, req := name, req
		g.Go(func() error {
			res, err := i.InstallFromURL(ctx, req)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed[name] = fmt.Errorf("%s: %w", name, err)
				return err
			}
			results[name] = res
			return nil
		})
	}
	_ = g.Wait()

	if len(failed) == 0 {
		return results, nil
	}

	failedNames := make([]string, 0, len(failed))
	for name := range failed {
		failedNames = append(failedNames, name)
	}
	sort.Strings(failedNames)
	errs := make([]error, 0, len(failedNames))
	for _, name := range failedNames {
		errs = append(errs, failed[name])
	}
	return results, errors.Join(errs...)
}
