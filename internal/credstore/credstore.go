// Package credstore persists platform credentials (cookie strings) in a bbolt database.
package credstore

import (
	"encoding/json"
	"errors"
	"time"

	"go.etcd.io/bbolt"
)

var ErrNotFound = errors.New("credential not found")

var Buckets = struct {
	Metadata    []byte
	Credentials []byte
}{
	Metadata:    []byte("__metadata__"),
	Credentials: []byte("credentials"),
}

var MetadataKeys = struct {
	Version []byte
}{
	Version: []byte("version"),
}

const currentVersion = 1

type Credential struct {
	Platform string    `json:"platform"`
	Cookie   string    `json:"cookie"`
	SavedAt  time.Time `json:"saved_at"`
}

// Store is the subset used by parsers, so tests can substitute NilStore.
type Store interface {
	Load(platform string) (*Credential, error)
	Save(platform string, cookie string) error
}

type NilStore struct{}

func (NilStore) Load(_ string) (*Credential, error) {
	return nil, ErrNotFound
}

func (NilStore) Save(_ string, _ string) error {
	return nil
}

type Database struct {
	db *bbolt.DB
}

func Open(path string) (*Database, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bbolt.Tx) (err error) {
		var metadata *bbolt.Bucket
		if metadata, err = tx.CreateBucketIfNotExists(Buckets.Metadata); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists(Buckets.Credentials); err != nil {
			return err
		}
		if versionBytes, err := json.Marshal(currentVersion); err != nil {
			return err
		} else {
			return metadata.Put(MetadataKeys.Version, versionBytes)
		}
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Database{db}, nil
}

func (d *Database) Close() error {
	return d.db.Close()
}

func (d *Database) Load(platform string) (*Credential, error) {
	var cred Credential
	err := d.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(Buckets.Credentials).Get([]byte(platform))
		if data == nil {
			return ErrNotFound
		}
		return json.Unmarshal(data, &cred)
	})
	if err != nil {
		return nil, err
	}
	return &cred, nil
}

func (d *Database) Save(platform string, cookie string) error {
	data, err := json.Marshal(Credential{Platform: platform, Cookie: cookie, SavedAt: time.Now().UTC()})
	if err != nil {
		return err
	}
	return d.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(Buckets.Credentials).Put([]byte(platform), data)
	})
}

func (d *Database) Delete(platform string) error {
	return d.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(Buckets.Credentials).Delete([]byte(platform))
	})
}

// List returns every stored credential, ordered by platform name.
func (d *Database) List() (creds []Credential, err error) {
	err = d.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(Buckets.Credentials).ForEach(func(k, v []byte) error {
			var cred Credential
			if err := json.Unmarshal(v, &cred); err != nil {
				return err
			}
			creds = append(creds, cred)
			return nil
		})
	})
	return creds, err
}
