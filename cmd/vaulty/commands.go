package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/cuongbtq/vaulty/internal/backup"
	"github.com/dustin/go-humanize"
	"github.com/maruel/subcommands"
)

////////////////////////////////////////////////////////////////////////////////
// backup-s3-bucket

type backupBucketRun struct {
	baseRun

	bucket string
	vault  string
	resume bool
}

func cmdBackupBucket() *subcommands.Command {
	return &subcommands.Command{
		UsageLine: "backup-s3-bucket -bucket <name> [-vault <name> -resume]",
		ShortDesc: "uploads every object of a bucket into a new vault",
		LongDesc: `Uploads every object of a bucket into a vault, one archive per object.

Objects already recorded in the vault's ledger are skipped, so an interrupted
backup continues where it stopped when rerun with -vault and -resume. A
snapshot of the ledger is written to the base path and copied to the
inventories bucket.`,
		CommandRun: func() subcommands.CommandRun {
			r := &backupBucketRun{}
			r.registerBaseFlags()
			r.Flags.StringVar(&r.bucket, "bucket", "", "Bucket to back up.")
			r.Flags.StringVar(&r.vault, "vault", "", "Vault to upload into. Generated from the bucket name when empty.")
			r.Flags.BoolVar(&r.resume, "resume", false, "Continue a backup into an existing vault.")
			return r
		},
	}
}

func (r *backupBucketRun) Run(a subcommands.Application, args []string, _ subcommands.Env) int {
	if r.bucket == "" {
		return r.usageErr(a, "-bucket is required")
	}
	if r.resume && r.vault == "" {
		return r.usageErr(a, "-resume needs -vault")
	}

	return r.execute(a, func(ctx context.Context, e *env) error {
		summary, err := e.service.BackupBucket(ctx, backup.BucketBackup{
			Bucket: r.bucket,
			Vault:  r.vault,
			Resume: r.resume,
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(a.GetOut(), "%s (%s)\n", summary, humanize.Bytes(uint64(summary.Bytes)))
		return nil
	})
}

////////////////////////////////////////////////////////////////////////////////
// upload-vimeo-videos

type uploadVideosRun struct {
	baseRun

	platform string
	vault    string
}

func cmdUploadVideos() *subcommands.Command {
	return &subcommands.Command{
		UsageLine: "upload-vimeo-videos -platform <name> [-vault <name>]",
		ShortDesc: "uploads the video files of a platform's Vimeo account",
		LongDesc: fmt.Sprintf(`Uploads the largest rendition of every video of a platform into a vault.

Known platforms: %v. The access token is read from the config file or from
VIMEO_<PLATFORM>_ACCESS_TOKEN.`, backup.Platforms),
		CommandRun: func() subcommands.CommandRun {
			r := &uploadVideosRun{}
			r.registerBaseFlags()
			r.Flags.StringVar(&r.platform, "platform", "", "Platform whose videos are uploaded.")
			r.Flags.StringVar(&r.vault, "vault", "", "Vault to upload into. Defaults to videos_<platform>.")
			return r
		},
	}
}

func (r *uploadVideosRun) Run(a subcommands.Application, args []string, _ subcommands.Env) int {
	if r.platform == "" {
		return r.usageErr(a, "-platform is required")
	}

	return r.execute(a, func(ctx context.Context, e *env) error {
		summary, err := e.service.UploadVideos(ctx, r.platform, r.vault)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.GetOut(), "%s (%s)\n", summary, humanize.Bytes(uint64(summary.Bytes)))
		return nil
	})
}

////////////////////////////////////////////////////////////////////////////////
// delete-archives

type deleteArchivesRun struct {
	baseRun

	vault       string
	logfile     string
	deleteVault bool
}

func cmdDeleteArchives() *subcommands.Command {
	return &subcommands.Command{
		UsageLine: "delete-archives -vault <name> [-logfile <file> -delete-vault]",
		ShortDesc: "deletes the archives of a vault",
		LongDesc: `Deletes the archives of a vault.

With -logfile the archive ids are taken from a backup snapshot, fetched from
the inventories bucket when it is not found under the base path. Without it
an inventory job is started and the command waits for its completion
notification, which can take several hours.`,
		CommandRun: func() subcommands.CommandRun {
			r := &deleteArchivesRun{}
			r.registerBaseFlags()
			r.Flags.StringVar(&r.vault, "vault", "", "Vault to empty.")
			r.Flags.StringVar(&r.logfile, "logfile", "", "Backup snapshot listing the archives to delete.")
			r.Flags.BoolVar(&r.deleteVault, "delete-vault", false, "Delete the vault once its archives are gone.")
			return r
		},
	}
}

func (r *deleteArchivesRun) Run(a subcommands.Application, args []string, _ subcommands.Env) int {
	if r.vault == "" {
		return r.usageErr(a, "-vault is required")
	}

	return r.execute(a, func(ctx context.Context, e *env) error {
		report, err := e.service.DeleteArchives(ctx, backup.ArchiveDeletion{
			Vault:       r.vault,
			Logfile:     r.logfile,
			DeleteVault: r.deleteVault,
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(a.GetOut(), "%d archives: %d deleted, %d failed\n", report.Total, report.Deleted, report.Failed)
		return nil
	})
}

////////////////////////////////////////////////////////////////////////////////
// get-vault-inventory

type inventoryRun struct {
	baseRun

	vault string
}

func cmdInventory() *subcommands.Command {
	return &subcommands.Command{
		UsageLine: "get-vault-inventory -vault <name>",
		ShortDesc: "records the inventory of a vault in a ledger",
		LongDesc: `Starts an inventory job, waits for its completion notification and records
every listed archive in the <vault>_inventory ledger. A snapshot of that
ledger is written to the base path.`,
		CommandRun: func() subcommands.CommandRun {
			r := &inventoryRun{}
			r.registerBaseFlags()
			r.Flags.StringVar(&r.vault, "vault", "", "Vault to inventory.")
			return r
		},
	}
}

func (r *inventoryRun) Run(a subcommands.Application, args []string, _ subcommands.Env) int {
	if r.vault == "" {
		return r.usageErr(a, "-vault is required")
	}

	return r.execute(a, func(ctx context.Context, e *env) error {
		report, err := e.service.Inventory(ctx, r.vault)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.GetOut(), "%d archives: %d recorded, %d already known\n", report.Total, report.Recorded, report.Skipped)
		return nil
	})
}

////////////////////////////////////////////////////////////////////////////////
// list-vaults

type listVaultsRun struct {
	baseRun

	json bool
}

func cmdListVaults() *subcommands.Command {
	return &subcommands.Command{
		UsageLine: "list-vaults [-json]",
		ShortDesc: "lists the vaults of the account",
		CommandRun: func() subcommands.CommandRun {
			r := &listVaultsRun{}
			r.registerBaseFlags()
			r.Flags.BoolVar(&r.json, "json", false, "Print JSON instead of a table.")
			return r
		},
	}
}

func (r *listVaultsRun) Run(a subcommands.Application, args []string, _ subcommands.Env) int {
	return r.execute(a, func(ctx context.Context, e *env) error {
		vaults, err := e.service.ListVaults(ctx)
		if err != nil {
			return err
		}
		if r.json {
			return printJSON(a.GetOut(), vaults)
		}

		w := tabwriter.NewWriter(a.GetOut(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tARCHIVES\tSIZE\tLAST INVENTORY")
		for _, v := range vaults {
			fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", v.Name, v.NumberOfArchives, humanize.Bytes(uint64(v.SizeInBytes)), v.LastInventoryDate)
		}
		return w.Flush()
	})
}

////////////////////////////////////////////////////////////////////////////////
// get-vault-jobs

type listJobsRun struct {
	baseRun

	vault string
}

func cmdListJobs() *subcommands.Command {
	return &subcommands.Command{
		UsageLine: "get-vault-jobs -vault <name>",
		ShortDesc: "lists the jobs of a vault as JSON",
		CommandRun: func() subcommands.CommandRun {
			r := &listJobsRun{}
			r.registerBaseFlags()
			r.Flags.StringVar(&r.vault, "vault", "", "Vault whose jobs are listed.")
			return r
		},
	}
}

func (r *listJobsRun) Run(a subcommands.Application, args []string, _ subcommands.Env) int {
	if r.vault == "" {
		return r.usageErr(a, "-vault is required")
	}

	return r.execute(a, func(ctx context.Context, e *env) error {
		jobs, err := e.service.ListJobs(ctx, r.vault)
		if err != nil {
			return err
		}
		return printJSON(a.GetOut(), jobs)
	})
}

////////////////////////////////////////////////////////////////////////////////
// get-job-output

type jobOutputRun struct {
	baseRun

	vault  string
	jobID  string
	output string
}

func cmdJobOutput() *subcommands.Command {
	return &subcommands.Command{
		UsageLine: "get-job-output -vault <name> -job <id> [-o <file>]",
		ShortDesc: "downloads the output of a finished job",
		CommandRun: func() subcommands.CommandRun {
			r := &jobOutputRun{}
			r.registerBaseFlags()
			r.Flags.StringVar(&r.vault, "vault", "", "Vault the job belongs to.")
			r.Flags.StringVar(&r.jobID, "job", "", "Job id.")
			r.Flags.StringVar(&r.output, "o", "", "Write the output to this file instead of stdout.")
			return r
		},
	}
}

func (r *jobOutputRun) Run(a subcommands.Application, args []string, _ subcommands.Env) int {
	if r.vault == "" || r.jobID == "" {
		return r.usageErr(a, "-vault and -job are required")
	}

	return r.execute(a, func(ctx context.Context, e *env) error {
		out := a.GetOut()
		if r.output != "" {
			f, err := os.Create(r.output)
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", r.output, err)
			}
			defer f.Close()
			out = f
		}
		return e.service.GetJobOutput(ctx, r.vault, r.jobID, out)
	})
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
