package mocks

import "github.com/mailtls/mailtls/internal/model"

// KeyValueStore allows mocking model.KeyValueStore.
type KeyValueStore struct {
	MockGet    func(key string) (value []byte, err error)
	MockSet    func(key string, value []byte) (err error)
	MockDelete func(key string) error
	MockKeys   func() ([]string, error)
}

var _ model.KeyValueStore = &KeyValueStore{}

// Get calls MockGet.
func (kvs *KeyValueStore) Get(key string) ([]byte, error) {
	return kvs.MockGet(key)
}

// Set calls MockSet.
func (kvs *KeyValueStore) Set(key string, value []byte) error {
	return kvs.MockSet(key, value)
}

// Delete calls MockDelete.
func (kvs *KeyValueStore) Delete(key string) error {
	return kvs.MockDelete(key)
}

// Keys calls MockKeys.
func (kvs *KeyValueStore) Keys() ([]string, error) {
	return kvs.MockKeys()
}
