package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	minio "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/compliancetracker/compliancetracker/internal/config"
	"github.com/compliancetracker/compliancetracker/pkg/logger"
)

// SnapshotWriter 上游响应快照归档
type SnapshotWriter interface {
	Write(ctx context.Context, meta SnapshotMeta, content []byte) (StoredObject, error)
}

// SnapshotMeta 快照元数据
type SnapshotMeta struct {
	Service  string
	HostName string
	AgentID  string
	Endpoint string
	// Time 为空时使用当前时间
	Time time.Time
}

// StoredObject 已写入对象
type StoredObject struct {
	URI         string `json:"uri"`
	Size        int64  `json:"size"`
	Checksum    string `json:"checksum"`
	ContentType string `json:"content_type"`
}

const snapshotContentType = "application/json; charset=utf-8"

// NewSnapshotWriter 根据配置创建写入器（委派到本地或 MinIO）
func NewSnapshotWriter(cfg *config.Config) SnapshotWriter {
	dw := &DelegatingSnapshotWriter{cfg: cfg, local: &LocalSnapshotWriter{cfg: cfg}}
	if strings.EqualFold(strings.TrimSpace(cfg.Snapshot.Backend), "minio") {
		dw.minio = initMinioWriter(cfg)
	}
	return dw
}

// DelegatingSnapshotWriter 按后端路由写入，MinIO 不可用时回退本地
type DelegatingSnapshotWriter struct {
	cfg   *config.Config
	local *LocalSnapshotWriter
	minio *MinioSnapshotWriter
}

func (w *DelegatingSnapshotWriter) Write(ctx context.Context, meta SnapshotMeta, content []byte) (StoredObject, error) {
	backend := strings.ToLower(strings.TrimSpace(w.cfg.Snapshot.Backend))
	if backend != "minio" {
		return w.local.Write(ctx, meta, content)
	}
	if w.minio == nil {
		logger.Warn("MinIO backend selected but client not initialized; falling back to local")
		obj, lerr := w.local.Write(ctx, meta, content)
		if lerr != nil {
			return StoredObject{}, fmt.Errorf("minio client not initialized; local fallback failed: %w", lerr)
		}
		return obj, nil
	}
	obj, err := w.minio.Write(ctx, meta, content)
	if err != nil {
		logger.Warn("MinIO write failed; falling back to local", "error", err)
		objLocal, lerr := w.local.Write(ctx, meta, content)
		if lerr != nil {
			return StoredObject{}, fmt.Errorf("minio write failed: %v; local fallback failed: %w", err, lerr)
		}
		return objLocal, nil
	}
	return obj, nil
}

// snapshotParts 对象层级：prefix / service / host / YYYYMMDD_HHMMSS
func snapshotParts(cfg *config.Config, meta SnapshotMeta) []string {
	var parts []string
	if p := strings.TrimSpace(cfg.Snapshot.Prefix); p != "" {
		parts = append(parts, p)
	}
	parts = append(parts, slug(meta.Service), slug(meta.HostName))
	ts := meta.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	parts = append(parts, ts.Format("20060102_150405"))
	return parts
}

// snapshotFilename 例如 006-sca.json
func snapshotFilename(meta SnapshotMeta) string {
	return slug(meta.AgentID) + "-" + slug(meta.Endpoint) + ".json"
}

func checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(sum[:])
}

// LocalSnapshotWriter 本地文件写入
type LocalSnapshotWriter struct {
	cfg *config.Config
}

func (w *LocalSnapshotWriter) Write(_ context.Context, meta SnapshotMeta, content []byte) (StoredObject, error) {
	baseDir := strings.TrimSpace(w.cfg.Snapshot.Local.BaseDir)
	if baseDir == "" {
		baseDir = "./local/snapshots"
	}
	dirPath := filepath.Join(append([]string{baseDir}, snapshotParts(w.cfg, meta)...)...)

	if w.cfg.Snapshot.Local.MkdirIfMissing {
		if err := os.MkdirAll(dirPath, 0o755); err != nil {
			return StoredObject{}, fmt.Errorf("failed to create dir: %w", err)
		}
	}

	fullPath := filepath.Join(dirPath, snapshotFilename(meta))
	if err := os.WriteFile(fullPath, content, 0o644); err != nil {
		return StoredObject{}, fmt.Errorf("failed to write file: %w", err)
	}

	return StoredObject{
		URI:         "file://" + fullPath,
		Size:        int64(len(content)),
		Checksum:    checksum(content),
		ContentType: snapshotContentType,
	}, nil
}

// MinioSnapshotWriter MinIO 对象存储写入
type MinioSnapshotWriter struct {
	cfg           *config.Config
	client        *minio.Client
	endpoint      string
	bucketEnsured bool
}

// initMinioWriter 尝试初始化 MinIO 写入器（包含超时设置与 bucket 校验）
func initMinioWriter(cfg *config.Config) *MinioSnapshotWriter {
	host := strings.TrimSpace(cfg.Storage.Minio.Host)
	port := cfg.Storage.Minio.Port
	if host == "" || port <= 0 {
		logger.Warn("MinIO configuration incomplete; host/port missing")
		return nil
	}
	endpoint := fmt.Sprintf("%s:%d", host, port)

	transport := &http.Transport{
		DialContext:           (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		TLSHandshakeTimeout:   5 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ExpectContinueTimeout: 5 * time.Second,
		IdleConnTimeout:       90 * time.Second,
		MaxIdleConns:          20,
		MaxIdleConnsPerHost:   20,
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.Storage.Minio.AccessKey, cfg.Storage.Minio.SecretKey, ""),
		Secure:    cfg.Storage.Minio.Secure,
		Transport: transport,
	})
	if err != nil {
		logger.Error("MinIO client initialization failed", "error", err)
		return nil
	}

	w := &MinioSnapshotWriter{cfg: cfg, client: client, endpoint: endpoint}
	bucket := strings.TrimSpace(cfg.Storage.Minio.Bucket)
	if bucket == "" {
		logger.Warn("MinIO bucket not configured")
		return w
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := w.ensureBucket(ctx, bucket, 1); err != nil {
		logger.Warn("MinIO bucket ensure at init failed", "error", err)
	} else {
		w.bucketEnsured = true
	}
	return w
}

// Write 将快照写入 MinIO
func (w *MinioSnapshotWriter) Write(ctx context.Context, meta SnapshotMeta, content []byte) (StoredObject, error) {
	if w == nil || w.client == nil {
		return StoredObject{}, fmt.Errorf("minio client not initialized")
	}
	bucket := strings.TrimSpace(w.cfg.Storage.Minio.Bucket)
	if bucket == "" {
		return StoredObject{}, fmt.Errorf("minio bucket not configured")
	}
	objectName := path.Join(strings.Join(snapshotParts(w.cfg, meta), "/"), snapshotFilename(meta))

	if err := w.fastConnectivityCheck(ctx); err != nil {
		return StoredObject{}, fmt.Errorf("minio connectivity failed to %s: %w", w.endpoint, err)
	}
	if !w.bucketEnsured {
		if err := w.ensureBucket(ctx, bucket, 2); err != nil {
			return StoredObject{}, fmt.Errorf("minio ensure bucket failed: %w", err)
		}
		w.bucketEnsured = true
	}

	var lastErr error
	attempts := []time.Duration{2 * time.Second, 4 * time.Second}
	for i := 0; i < len(attempts); i++ {
		attemptCtx, cancel := w.attemptContext(ctx, attempts[i])
		_, err := w.client.PutObject(attemptCtx, bucket, objectName, bytes.NewReader(content), int64(len(content)),
			minio.PutObjectOptions{ContentType: snapshotContentType})
		cancel()
		if err == nil {
			lastErr = nil
			break
		}
		lastErr = err
		time.Sleep(attempts[i])
	}
	if lastErr != nil {
		return StoredObject{}, fmt.Errorf("minio put object failed after retries: %w", lastErr)
	}

	return StoredObject{
		URI:         "minio://" + path.Join(bucket, objectName),
		Size:        int64(len(content)),
		Checksum:    checksum(content),
		ContentType: snapshotContentType,
	}, nil
}

// fastConnectivityCheck 使用 TCP 直连做快速连通性校验
func (w *MinioSnapshotWriter) fastConnectivityCheck(parent context.Context) error {
	d := &net.Dialer{Timeout: 3 * time.Second}
	conn, err := d.DialContext(parent, "tcp", w.endpoint)
	if err != nil {
		return err
	}
	_ = conn.Close()
	return nil
}

// ensureBucket 校验并创建 bucket，支持有限重试
func (w *MinioSnapshotWriter) ensureBucket(parent context.Context, bucket string, retries int) error {
	var lastErr error
	for i := 0; i <= retries; i++ {
		ctx, cancel := w.attemptContext(parent, 10*time.Second)
		exists, err := w.client.BucketExists(ctx, bucket)
		cancel()
		if err != nil {
			lastErr = err
			time.Sleep(time.Duration(i+1) * time.Second)
			continue
		}
		if exists {
			return nil
		}
		ctx2, cancel2 := w.attemptContext(parent, 10*time.Second)
		mkErr := w.client.MakeBucket(ctx2, bucket, minio.MakeBucketOptions{})
		cancel2()
		if mkErr != nil {
			lastErr = mkErr
			time.Sleep(time.Duration(i+1) * time.Second)
			continue
		}
		return nil
	}
	if lastErr != nil {
		return lastErr
	}
	return fmt.Errorf("bucket ensure failed for %s", bucket)
}

// attemptContext 构造限时上下文，尊重父上下文的剩余截止时间
func (w *MinioSnapshotWriter) attemptContext(parent context.Context, prefer time.Duration) (context.Context, context.CancelFunc) {
	if deadline, ok := parent.Deadline(); ok {
		remain := time.Until(deadline)
		if remain > time.Second && prefer < remain {
			return context.WithTimeout(parent, prefer)
		}
		if remain > time.Second {
			return context.WithTimeout(parent, remain-time.Second)
		}
		return context.WithTimeout(parent, time.Second)
	}
	return context.WithTimeout(parent, prefer)
}

var slugRe = regexp.MustCompile(`[^a-z0-9._-]+`)

func slug(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, " ", "_")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	s = slugRe.ReplaceAllString(s, "")
	if s == "" {
		s = "unknown"
	}
	return s
}
