package feed

import (
	"context"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/dmorgan81/beamshim/internal/log"
	"github.com/gorilla/feeds"
	"github.com/samber/do"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
)

var imageExts = []string{".png", ".jpg", ".jpeg", ".webp"}

type S3API interface {
	s3.ListObjectsV2APIClient
	HeadObject(context.Context, *s3.HeadObjectInput, ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// Generator builds an RSS feed from the images archived in a bucket.
type Generator struct {
	client  S3API
	bucket  string
	siteURL string
}

func NewS3Generator(i *do.Injector) (*Generator, error) {
	client := do.MustInvoke[*s3.Client](i)
	bucket := do.MustInvokeNamed[string](i, "bucket")
	siteURL := do.MustInvokeNamed[string](i, "site_url")
	return NewGenerator(client, bucket, siteURL), nil
}

func NewGenerator(client S3API, bucket, siteURL string) *Generator {
	return &Generator{client, bucket, strings.TrimRight(siteURL, "/")}
}

func (g *Generator) Generate(ctx context.Context) ([]byte, error) {
	log := log.FromContextOrDiscard(ctx).WithGroup("feed")
	log.Info("generating rss feed", "bucket", g.bucket)

	feed := feeds.Feed{
		Title:       "beamshim",
		Description: "Images generated on Beam",
		Link:        &feeds.Link{Href: g.siteURL},
		Updated:     time.Now(),
	}

	pager := s3.NewListObjectsV2Paginator(g.client, &s3.ListObjectsV2Input{
		Bucket: &g.bucket,
	})

	var mu sync.Mutex
	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(8)
	for pager.HasMorePages() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			// heads already started must finish before returning
			_ = group.Wait()
			return nil, err
		}

		objs := lo.Filter(page.Contents, func(o s3types.Object, _ int) bool {
			key := *o.Key
			return lo.Contains(imageExts, strings.ToLower(path.Ext(key))) && !strings.HasPrefix(key, "latest")
		})

		for _, obj := range objs {
			group.Go(func() error {
				out, err := g.client.HeadObject(ctx, &s3.HeadObjectInput{
					Bucket: &g.bucket,
					Key:    obj.Key,
				})
				if err != nil {
					return err
				}

				meta := out.Metadata
				item := &feeds.Item{
					Title:       lo.Ternary(meta["prompt"] != "", meta["prompt"], *obj.Key),
					Link:        &feeds.Link{Href: fmt.Sprintf("%s/%s", g.siteURL, *obj.Key)},
					Description: fmt.Sprintf("generated %s via %s", meta["date"], meta["source"]),
					Id:          *obj.Key,
				}
				if out.LastModified != nil {
					item.Updated = *out.LastModified
				}

				mu.Lock()
				feed.Add(item)
				mu.Unlock()
				return nil
			})
		}
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}

	feed.Sort(func(a, b *feeds.Item) bool {
		return a.Updated.After(b.Updated)
	})
	rss, err := feed.ToRss()
	return []byte(rss), err
}
