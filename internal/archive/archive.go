package archive

import (
	"bytes"
	"compress/gzip"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/dgraph-io/badger/v4"
)

var ErrNotFound = errors.New("snapshot not found")

// Archive 用 badger 保存抓取时下载的原始 HTML（gzip 压缩），按 URL 索引
type Archive struct {
	db *badger.DB
}

// Meta 是快照的元数据
type Meta struct {
	URL       string    `json:"url"`
	Size      int       `json:"size"`
	FetchedAt time.Time `json:"fetchedAt"`
}

func Open(dir string) (*Archive, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger %s: %w", dir, err)
	}
	return &Archive{db: db}, nil
}

// OpenInMemory 打开一个不落盘的归档，用于测试和一次性运行
func OpenInMemory() (*Archive, error) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open in-memory badger: %w", err)
	}
	return &Archive{db: db}, nil
}

func (a *Archive) Close() error {
	return a.db.Close()
}

// Put 保存 pageURL 的 HTML，已存在时覆盖为最新版本
func (a *Archive) Put(pageURL string, html []byte) error {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(html); err != nil {
		return err
	}
	if err := zw.Close(); err != nil {
		return err
	}

	meta, err := json.Marshal(Meta{URL: pageURL, Size: len(html), FetchedAt: time.Now().UTC()})
	if err != nil {
		return err
	}

	key := hashKey(pageURL)
	return a.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte("page:"+key), buf.Bytes()); err != nil {
			return err
		}
		return txn.Set([]byte("meta:"+key), meta)
	})
}

// Get 返回解压后的 HTML
func (a *Archive) Get(pageURL string) ([]byte, error) {
	var compressed []byte
	err := a.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte("page:" + hashKey(pageURL)))
		if err != nil {
			return err
		}
		compressed, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	zr, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(zr)
}

func (a *Archive) Stat(pageURL string) (Meta, error) {
	var meta Meta
	err := a.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte("meta:" + hashKey(pageURL)))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &meta)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Meta{}, ErrNotFound
	}
	return meta, err
}

func hashKey(pageURL string) string {
	sum := sha1.Sum([]byte(pageURL))
	return hex.EncodeToString(sum[:])
}
