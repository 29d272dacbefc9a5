package agent

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"

	"github.com/edvin/dbaas/internal/fault"
)

// BackupRunner dumps the local database, compresses the dump and streams it
// into the object store. Completion is reported out of band by the caller.
type BackupRunner struct {
	log      zerolog.Logger
	db       *DatabaseAdmin
	endpoint string
	key      string
	secret   string
	workDir  string
}

func NewBackupRunner(log zerolog.Logger, db *DatabaseAdmin, endpoint, key, secret string) *BackupRunner {
	return &BackupRunner{
		log:      log.With().Str("component", "backup-runner").Logger(),
		db:       db,
		endpoint: endpoint,
		key:      key,
		secret:   secret,
		workDir:  os.TempDir(),
	}
}

// s3Client returns an S3 client configured for the object store endpoint.
func (r *BackupRunner) s3Client() *s3.Client {
	return s3.New(s3.Options{
		BaseEndpoint: aws.String(r.endpoint),
		Region:       "us-east-1",
		Credentials:  credentials.NewStaticCredentialsProvider(r.key, r.secret, ""),
		UsePathStyle: true,
	})
}

// BackupResult describes a finished upload.
type BackupResult struct {
	Location  string
	Checksum  string
	SizeBytes int64
	Timestamp time.Time
}

// Run dumps all tenant schemas, gzips the stream and uploads it to
// bucket/objectKey. The dump file is removed afterwards either way.
func (r *BackupRunner) Run(ctx context.Context, backupID, bucket, objectKey string) (*BackupResult, error) {
	dumpPath := filepath.Join(r.workDir, backupID+".sql.gz")
	defer os.Remove(dumpPath)

	r.log.Info().Str("backup_id", backupID).Str("path", dumpPath).Msg("dumping database")

	baseArgs, err := r.db.mysqlArgs()
	if err != nil {
		return nil, fault.New(fault.GuestError, "parse mysql DSN: %v", err)
	}

	dumpArgs := append(baseArgs, "--single-transaction", "--routines", "--triggers", "--all-databases")
	shell := fmt.Sprintf("mysqldump %s | gzip > %s", strings.Join(quoteArgs(dumpArgs), " "), dumpPath)
	cmd := exec.CommandContext(ctx, "bash", "-c", shell)
	if output, err := cmd.CombinedOutput(); err != nil {
		return nil, fault.New(fault.GuestError, "mysqldump failed: %s: %v", string(output), err)
	}

	checksum, size, err := fileChecksum(dumpPath)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(dumpPath)
	if err != nil {
		return nil, fault.New(fault.GuestError, "open dump: %v", err)
	}
	defer f.Close()

	r.log.Info().Str("backup_id", backupID).Str("bucket", bucket).
		Str("key", objectKey).Int64("size_bytes", size).Msg("uploading backup")

	_, err = r.s3Client().PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(objectKey),
		Body:          f,
		ContentLength: aws.Int64(size),
	})
	if err != nil {
		return nil, fault.New(fault.GuestError, "upload backup %s: %v", backupID, err)
	}

	return &BackupResult{
		Location:  fmt.Sprintf("%s/%s/%s", strings.TrimSuffix(r.endpoint, "/"), bucket, objectKey),
		Checksum:  checksum,
		SizeBytes: size,
		Timestamp: time.Now().UTC(),
	}, nil
}

// Restore downloads bucket/objectKey and replays it into the local database.
func (r *BackupRunner) Restore(ctx context.Context, bucket, objectKey string) error {
	restorePath := filepath.Join(r.workDir, "restore-"+filepath.Base(objectKey))
	defer os.Remove(restorePath)

	r.log.Info().Str("bucket", bucket).Str("key", objectKey).Msg("downloading backup")

	obj, err := r.s3Client().GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		return fault.New(fault.GuestError, "download backup %s/%s: %v", bucket, objectKey, err)
	}
	defer obj.Body.Close()

	f, err := os.Create(restorePath)
	if err != nil {
		return fault.New(fault.GuestError, "create restore file: %v", err)
	}
	if _, err := io.Copy(f, obj.Body); err != nil {
		f.Close()
		return fault.New(fault.GuestError, "write restore file: %v", err)
	}
	if err := f.Close(); err != nil {
		return fault.New(fault.GuestError, "close restore file: %v", err)
	}

	baseArgs, err := r.db.mysqlArgs()
	if err != nil {
		return fault.New(fault.GuestError, "parse mysql DSN: %v", err)
	}

	shell := fmt.Sprintf("gunzip -c %s | mysql %s", restorePath, strings.Join(quoteArgs(baseArgs), " "))
	cmd := exec.CommandContext(ctx, "bash", "-c", shell)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fault.New(fault.GuestError, "restore failed: %s: %v", string(output), err)
	}
	return nil
}

// fileChecksum returns the hex sha256 and size of the file.
func fileChecksum(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, fault.New(fault.GuestError, "open %s: %v", path, err)
	}
	defer f.Close()

	h := sha256.New()
	size, err := io.Copy(h, f)
	if err != nil {
		return "", 0, fault.New(fault.GuestError, "checksum %s: %v", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), size, nil
}

// quoteArgs wraps each argument in single quotes for safe shell usage.
func quoteArgs(args []string) []string {
	quoted := make([]string, len(args))
	for i, a := range args {
		quoted[i] = "'" + strings.ReplaceAll(a, "'", "'\\''") + "'"
	}
	return quoted
}
