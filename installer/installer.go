// Package installer orchestrates plugin installation.
//
// It fetches a plugin archive, has the secondary runtime complete the plugin manifest and
// materializes the result into a versioned install directory. Stub generation and path checks
// are single runtime round trips.
package installer

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/joncooperworks/pluginstall/artifact"
	"github.com/joncooperworks/pluginstall/bridge"
	"github.com/joncooperworks/pluginstall/install"
	"github.com/joncooperworks/pluginstall/observability"
)

// Runtime is the secondary-runtime surface the installer calls. *bridge.Bridge implements it.
type Runtime interface {
	MakePlugin(ctx context.Context, internalName, workingID string) (string, error)
	MakeRepo(ctx context.Context, url string) (string, error)
	FillOutManifest(ctx context.Context, manifest, workingID, repoURL string) (bridge.Completion, error)
	IsPathValid(ctx context.Context, path string) (bool, error)
}

// Fetcher downloads archives and repository listings. *artifact.Fetcher implements it.
type Fetcher interface {
	FetchArchive(ctx context.Context, url string) ([]byte, error)
	FetchRepository(ctx context.Context, url string) ([]artifact.RepoPlugin, error)
}

// Option configures an Installer.
type Option func(*Installer)

// WithLogger sets the logger.
func WithLogger(log *logrus.Logger) Option {
	return func(i *Installer) {
		i.log = log
	}
}

// WithMetrics records install outcomes.
func WithMetrics(m *observability.Metrics) Option {
	return func(i *Installer) {
		i.metrics = m
	}
}

// WithConcurrency bounds how many repository plugins install at once. Zero or less keeps the
// default of 4.
func WithConcurrency(n int) Option {
	return func(i *Installer) {
		if n > 0 {
			i.concurrency = n
		}
	}
}

// Installer runs installer operations against one runtime and install root.
// It is safe for concurrent use.
type Installer struct {
	runtime     Runtime
	fetcher     Fetcher
	root        string
	concurrency int
	log         *logrus.Logger
	metrics     *observability.Metrics
}

// New creates an installer writing plugins under installRoot.
func New(rt Runtime, fetcher Fetcher, installRoot string, opts ...Option) *Installer {
	i := &Installer{
		runtime:     rt,
		fetcher:     fetcher,
		root:        installRoot,
		concurrency: 4,
	}
	for _, opt := range opts {
		opt(i)
	}
	i.log = observability.OrDefault(i.log)
	return i
}

// CreatePlugin returns the guest's profile entry JSON for internalName. An empty workingID is
// replaced with a fresh UUID.
func (i *Installer) CreatePlugin(ctx context.Context, internalName, workingID string) (string, error) {
	if workingID == "" {
		workingID = uuid.NewString()
	}
	return i.runtime.MakePlugin(ctx, internalName, workingID)
}

// CreateRepo returns the guest's repository entry JSON for url.
func (i *Installer) CreateRepo(ctx context.Context, url string) (string, error) {
	return i.runtime.MakeRepo(ctx, url)
}

// InstallRequest names one plugin install.
type InstallRequest struct {
	InternalName string
	URL          string
	RepoURL      string
}

// InstallResult describes a completed install.
type InstallResult struct {
	InternalName string
	// WorkingID correlates this install with the completed manifest.
	WorkingID    string
	Version      string
	Dir          string
	ArchiveBytes int
}

// InstallFromURL runs the full install pipeline. Every failure is an *InstallError naming the
// stage it happened in. Nothing on disk is touched before the manifest has been completed.
func (i *Installer) InstallFromURL(ctx context.Context, req InstallRequest) (*InstallResult, error) {
	start := time.Now()
	log := i.log.WithFields(logrus.Fields{
		"plugin": req.InternalName,
		"url":    req.URL,
	})

	res, stage, err := i.install(ctx, req, log)
	i.metrics.RecordInstall(string(stage), time.Since(start), err)
	if err != nil {
		var ie *InstallError
		entry := log.WithError(err)
		if errors.As(err, &ie) {
			entry = entry.WithFields(logrus.Fields{"stage": ie.Stage, "kind": ie.Kind})
			if ie.ContractViolation() {
				entry = entry.WithField("contract_violation", true)
			}
		}
		entry.Error("install failed")
		return nil, err
	}

	log.WithFields(logrus.Fields{
		"version":    res.Version,
		"working_id": res.WorkingID,
		"dir":        res.Dir,
	}).Info("plugin installed")
	return res, nil
}

func (i *Installer) install(ctx context.Context, req InstallRequest, log *logrus.Entry) (*InstallResult, Stage, error) {
	fail := func(stage Stage, err error) (*InstallResult, Stage, error) {
		return nil, stage, &InstallError{Stage: stage, Kind: classify(stage, err), Err: err}
	}
	enter := func(stage Stage) {
		log.WithField("stage", stage).Debug("install stage")
	}

	enter(StageFetching)
	if err := install.ValidateName(req.InternalName); err != nil {
		return fail(StageFetching, err)
	}
	data, err := i.fetcher.FetchArchive(ctx, req.URL)
	if err != nil {
		return fail(StageFetching, err)
	}

	enter(StageExtractingManifest)
	archive, err := artifact.Open(data)
	if err != nil {
		return fail(StageExtractingManifest, err)
	}
	manifest, err := archive.ReadManifest(req.InternalName)
	if err != nil {
		return fail(StageExtractingManifest, err)
	}

	enter(StageCompletingManifest)
	workingID := uuid.NewString()
	completion, err := i.runtime.FillOutManifest(ctx, manifest, workingID, req.RepoURL)
	if err != nil {
		return fail(StageCompletingManifest, err)
	}

	enter(StagePreparingDirectory)
	dir, err := install.Dir(i.root, req.InternalName, completion.Version)
	if err != nil {
		return fail(StagePreparingDirectory, err)
	}
	if err := install.Prepare(dir); err != nil {
		return fail(StagePreparingDirectory, err)
	}

	enter(StageExtractingArchive)
	if err := archive.ExtractAll(dir); err != nil {
		return fail(StageExtractingArchive, err)
	}

	enter(StageFinalizing)
	if err := install.Finalize(dir, req.InternalName, completion.Manifest); err != nil {
		return fail(StageFinalizing, err)
	}

	enter(StageDone)
	return &InstallResult{
		InternalName: req.InternalName,
		WorkingID:    workingID,
		Version:      completion.Version,
		Dir:          dir,
		ArchiveBytes: archive.Size(),
	}, StageDone, nil
}
