package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/spf13/cobra"

	"github.com/haivivi/memkit/pkg/storage"
)

var exportCmd = &cobra.Command{
	Use:   "export [name]",
	Short: "Export the tenant's records as JSONL",
	Long: `Stream every memory, journal entry, identity card and rule of the
tenant as one JSON line each. Snapshots are written to
<data-dir>/snapshots, or to S3 when a snapshot bucket is configured.
Pass "-" to write to stdout instead.

Examples:
  memkit export                  # <user>-<date>.jsonl in the snapshot store
  memkit export backup.jsonl
  memkit export - > backup.jsonl`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := openEngine(cmd.Context())
		if err != nil {
			return err
		}
		defer env.close()
		tc, err := env.requireTenant()
		if err != nil {
			return err
		}

		name := ""
		if len(args) == 1 {
			name = args[0]
		}
		if name == "-" {
			n, err := env.eng.Export(cmd.Context(), tc, os.Stdout)
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "Exported %d records\n", n)
			return nil
		}
		if name == "" {
			name = fmt.Sprintf("%s-%s.jsonl", tc.UserID, time.Now().UTC().Format("20060102"))
		}

		files, err := snapshotStore(env)
		if err != nil {
			return err
		}
		w, err := files.Write(cmd.Context(), name)
		if err != nil {
			return fmt.Errorf("open snapshot %s: %w", name, err)
		}
		n, err := env.eng.Export(cmd.Context(), tc, w)
		if cerr := w.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return err
		}
		fmt.Printf("Exported %d records to %s\n", n, name)
		return nil
	},
}

var importCmd = &cobra.Command{
	Use:   "import <name>",
	Short: "Import records from a JSONL snapshot",
	Long: `Re-upsert records from a snapshot into the tenant's private
plane. Team markers in the snapshot are stripped: imported memories are
always private. Pass "-" to read from stdin.

Examples:
  memkit import backup.jsonl
  memkit import - < backup.jsonl`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := openEngine(cmd.Context())
		if err != nil {
			return err
		}
		defer env.close()
		tc, err := env.requireTenant()
		if err != nil {
			return err
		}

		if args[0] == "-" {
			n, err := env.eng.Import(cmd.Context(), tc, os.Stdin)
			if err != nil {
				return err
			}
			fmt.Printf("Imported %d records\n", n)
			return nil
		}

		files, err := snapshotStore(env)
		if err != nil {
			return err
		}
		r, err := files.Read(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("open snapshot %s: %w", args[0], err)
		}
		defer r.Close()

		n, err := env.eng.Import(cmd.Context(), tc, r)
		if err != nil {
			return err
		}
		fmt.Printf("Imported %d records\n", n)
		return nil
	},
}

// snapshotStore resolves where snapshots live: an S3 bucket when one is
// configured, a directory under the data dir otherwise.
func snapshotStore(env *engineEnv) (storage.FileStore, error) {
	sn := env.cfg.Snapshots
	if sn.Bucket != "" {
		client, err := snapshotS3Client(sn.Region, sn.Endpoint)
		if err != nil {
			return nil, err
		}
		return storage.NewS3(client, sn.Bucket, sn.Prefix), nil
	}

	dir := env.dataDir
	if dir == "" {
		d, err := resolveDataDir(env.cfg)
		if err != nil {
			return nil, err
		}
		dir = d
	}
	return storage.NewLocal(filepath.Join(dir, "snapshots"))
}

// snapshotS3Client builds an S3 client from the standard AWS environment
// variables, with an optional endpoint override for S3-compatible stores.
func snapshotS3Client(region, endpoint string) (*s3.Client, error) {
	id := os.Getenv("AWS_ACCESS_KEY_ID")
	secret := os.Getenv("AWS_SECRET_ACCESS_KEY")
	if id == "" || secret == "" {
		return nil, fmt.Errorf("S3 snapshots need AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY")
	}
	if region == "" {
		region = os.Getenv("AWS_REGION")
	}
	token := os.Getenv("AWS_SESSION_TOKEN")

	cfg := aws.Config{
		Region: region,
		Credentials: aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
			return aws.Credentials{AccessKeyID: id, SecretAccessKey: secret, SessionToken: token}, nil
		}),
	}
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

func init() {
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
}
