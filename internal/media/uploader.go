package media

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-kratos/kratos/v2/log"
	"golang.org/x/sync/errgroup"
)

const (
	contentTypeSegment  = "video/mp2t"
	contentTypePlaylist = "application/vnd.apple.mpegurl"
)

// ArtifactStorage 定义产物上传所需的对象存储能力。
type ArtifactStorage interface {
	UploadFile(ctx context.Context, key, path, contentType string) error
}

// ArtifactUploader 将本地转码产物树推送到对象存储。
// 上传顺序是对外契约：每个档位先传全部切片再传该档位索引，
// 全部档位索引就绪后才传顶层 master 索引，收窄客户端
// 拉到引用未就绪切片的播放列表的时间窗口。
// 档位之间互不引用，可以并发上传。
type ArtifactUploader struct {
	storage ArtifactStorage
	log     *log.Helper
}

// NewArtifactUploader 构造 ArtifactUploader。
func NewArtifactUploader(storage ArtifactStorage, logger log.Logger) (*ArtifactUploader, error) {
	if storage == nil {
		return nil, errors.New("artifact uploader: storage is required")
	}
	return &ArtifactUploader{
		storage: storage,
		log:     log.NewHelper(logger),
	}, nil
}

// Upload 将 localRoot 下的产物树上传到 baseKey 前缀下。
func (u *ArtifactUploader) Upload(ctx context.Context, localRoot, baseKey string, ladder []Rendition) error {
	baseKey = strings.TrimSuffix(baseKey, "/")

	group, groupCtx := errgroup.WithContext(ctx)
	for _, r := range ladder {
		name := r.Name
		group.Go(func() error {
			return u.uploadRendition(groupCtx, localRoot, baseKey, name)
		})
	}
	if err := group.Wait(); err != nil {
		return err
	}

	masterPath := filepath.Join(localRoot, masterPlaylist)
	masterKey := baseKey + "/" + masterPlaylist
	if err := u.storage.UploadFile(ctx, masterKey, masterPath, contentTypePlaylist); err != nil {
		return fmt.Errorf("upload master playlist: %w", err)
	}

	u.log.WithContext(ctx).Infof("artifacts uploaded: base_key=%s renditions=%d", baseKey, len(ladder))
	return nil
}

func (u *ArtifactUploader) uploadRendition(ctx context.Context, localRoot, baseKey, name string) error {
	dir := filepath.Join(localRoot, name)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read rendition dir %s: %w", name, err)
	}

	var segments []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.HasSuffix(entry.Name(), ".ts") {
			segments = append(segments, entry.Name())
		}
	}
	if len(segments) == 0 {
		return fmt.Errorf("rendition %s produced no segments", name)
	}
	sort.Strings(segments)

	for _, seg := range segments {
		key := fmt.Sprintf("%s/%s/%s", baseKey, name, seg)
		if err := u.storage.UploadFile(ctx, key, filepath.Join(dir, seg), contentTypeSegment); err != nil {
			return fmt.Errorf("upload segment %s/%s: %w", name, seg, err)
		}
	}

	indexKey := fmt.Sprintf("%s/%s/index.m3u8", baseKey, name)
	if err := u.storage.UploadFile(ctx, indexKey, filepath.Join(dir, "index.m3u8"), contentTypePlaylist); err != nil {
		return fmt.Errorf("upload rendition playlist %s: %w", name, err)
	}
	return nil
}
