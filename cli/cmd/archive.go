package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/optimeas/opticloud-device-mgmt-go/archive"
	"github.com/optimeas/opticloud-device-mgmt-go/cli/config"
	"github.com/optimeas/opticloud-device-mgmt-go/cli/reader"
	"github.com/optimeas/opticloud-device-mgmt-go/cli/render"
	"github.com/optimeas/opticloud-device-mgmt-go/record"
)

// archiveTimeout bounds one archive read or export.
const archiveTimeout = 30 * time.Second

// storageChoice holds the resolved archive location.
type storageChoice struct {
	dataset   string
	backend   string
	path      string
	region    string
	endpoint  string
	pathStyle bool
}

// resolveStorage merges storage flags over the config file. It returns
// nil when no archive is configured.
func resolveStorage(c *cli.Context, cfg *config.Config) (*storageChoice, error) {
	sc := config.StorageConfig{}
	if cfg != nil {
		sc = cfg.Storage
	}

	choice := &storageChoice{
		dataset:   resolveString(c, "storage-dataset", sc.Dataset),
		backend:   resolveString(c, "storage-backend", sc.Backend),
		path:      resolveString(c, "storage-path", sc.Path),
		region:    resolveString(c, "storage-region", sc.Region),
		endpoint:  resolveString(c, "storage-endpoint", sc.Endpoint),
		pathStyle: resolveBool(c, "storage-s3-path-style", sc.S3PathStyle),
	}
	if choice.dataset == "" {
		choice.dataset = archive.DefaultDataset
	}

	switch {
	case choice.backend == "" && choice.path == "":
		return nil, nil
	case choice.backend == "" || choice.path == "":
		return nil, errors.New("both --storage-backend and --storage-path are required for the archive")
	}
	switch choice.backend {
	case config.StorageFS, config.StorageS3:
	default:
		return nil, fmt.Errorf("unsupported storage-backend: %s (must be fs or s3)", choice.backend)
	}
	return choice, nil
}

// openArchive opens the dataset named by choice.
func openArchive(ctx context.Context, choice *storageChoice) (*archive.Archiver, error) {
	switch choice.backend {
	case config.StorageFS:
		ds, err := archive.NewFSDataset(choice.dataset, choice.path)
		if err != nil {
			return nil, err
		}
		return archive.New(ds), nil
	case config.StorageS3:
		bucket, prefix := archive.ParseS3Path(choice.path)
		ds, err := archive.NewS3Dataset(ctx, choice.dataset, archive.S3Config{
			Bucket:       bucket,
			Prefix:       prefix,
			Region:       choice.region,
			Endpoint:     choice.endpoint,
			UsePathStyle: choice.pathStyle,
		})
		if err != nil {
			return nil, err
		}
		return archive.New(ds), nil
	default:
		return nil, fmt.Errorf("unsupported storage-backend: %s", choice.backend)
	}
}

// readArchive loads every archived transfer into a reader.
func readArchive(c *cli.Context, cfg *config.Config) (*reader.JournalReader, error) {
	choice, err := resolveStorage(c, cfg)
	if err != nil {
		return nil, err
	}
	if choice == nil {
		return nil, errors.New("--from-archive needs --storage-backend and --storage-path (or the storage config section)")
	}

	ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
	defer cancel()

	a, err := openArchive(ctx, choice)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize archive reader: %w", err)
	}
	recs, err := a.Records(ctx, archive.Filter{})
	if err != nil {
		return nil, fmt.Errorf("failed to read archive: %w", err)
	}
	return reader.NewJournalReader(&record.ReadResult{Records: recs}), nil
}

func historyArchiveCommand() *cli.Command {
	return &cli.Command{
		Name:  "archive",
		Usage: "Copy journal records into the fs or s3 archive",
		Flags: historyFlags(append(StorageFlags(),
			&cli.StringFlag{
				Name:  "since",
				Usage: "Only transfers after an RFC 3339 time or within a duration (24h)",
			},
		)...),
		Action: historyArchiveAction,
	}
}

func historyArchiveAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for archive", 1)
	}

	since, err := reader.ParseSince(c.String("since"), time.Now())
	if err != nil {
		return err
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	choice, err := resolveStorage(c, cfg)
	if err != nil {
		return err
	}
	if choice == nil {
		return errors.New("--storage-backend and --storage-path are required (or set the storage config section)")
	}

	jr, err := openJournal(c, cfg)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()
	ctx, cancelTimeout := context.WithTimeout(ctx, archiveTimeout)
	defer cancelTimeout()

	a, err := openArchive(ctx, choice)
	if err != nil {
		return fmt.Errorf("failed to initialize archive: %w", err)
	}
	res, err := a.Export(ctx, jr.Records(since))
	if err != nil {
		return fmt.Errorf("archive failed: %w", err)
	}
	return r.Render(res)
}
