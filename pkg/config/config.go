// Package config opens the store an application configuration document lives in.
package config

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/andrej220/ansirun/pkg/config/configstore"
	"github.com/andrej220/ansirun/pkg/config/filestore"
	"github.com/andrej220/ansirun/pkg/config/mongostore"
)

type StoreType int

const (
	FileStore StoreType = iota
	MongoStore
)

func (t StoreType) String() string {
	switch t {
	case FileStore:
		return "file"
	case MongoStore:
		return "mongo"
	default:
		return fmt.Sprintf("StoreType(%d)", int(t))
	}
}

var (
	ErrInvalidStoreType = errors.New("invalid store type")
)

// Config combines all store capabilities. Watch fails for stores that cannot
// report changes.
type Config interface {
	configstore.ConfigStore
	Watch(onChange func()) error
	Close(ctx context.Context) error
}

type FileConfig struct {
	Path string `yaml:"path" json:"path"`
}

type MongoConfig struct {
	URI      string `yaml:"uri" json:"uri"`
	DBName   string `yaml:"dbName" json:"dbName"`
	CollName string `yaml:"collName" json:"collName"`
	ID       string `yaml:"id" json:"id"` // Document ID
}

func NewStore(storeType StoreType, cfg any) (Config, error) {
	switch storeType {
	case FileStore:
		fileCfg, ok := cfg.(*FileConfig)
		if !ok {
			return nil, fmt.Errorf("invalid config type for %s store, expected *FileConfig", storeType)
		}
		return filestore.New(fileCfg.Path), nil
	case MongoStore:
		mongoCfg, ok := cfg.(*MongoConfig)
		if !ok {
			return nil, fmt.Errorf("invalid config type for %s store, expected *MongoConfig", storeType)
		}
		return mongostore.New(mongoCfg.URI, mongoCfg.DBName, mongoCfg.CollName, mongoCfg.ID)
	default:
		return nil, ErrInvalidStoreType
	}
}

// StoreTypeOf reports which store serves location: mongodb:// and
// mongodb+srv:// URIs are MongoDB, anything else is a file path.
func StoreTypeOf(location string) StoreType {
	if strings.HasPrefix(location, "mongodb://") || strings.HasPrefix(location, "mongodb+srv://") {
		return MongoStore
	}
	return FileStore
}

// Open returns the store for location. For MongoDB the database, collection and
// document come from doc; its URI is replaced by location.
func Open(location string, doc MongoConfig) (Config, error) {
	switch StoreTypeOf(location) {
	case MongoStore:
		doc.URI = location
		return NewStore(MongoStore, &doc)
	default:
		return NewStore(FileStore, &FileConfig{Path: location})
	}
}
