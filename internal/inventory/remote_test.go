package inventory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	cserrors "github.com/BadgerOps/cloudsave/internal/errors"
	"github.com/BadgerOps/cloudsave/internal/storage"
)

func TestList_PaginatesAndStripsPrefix(t *testing.T) {
	ctrl := gomock.NewController(t)
	st := storage.NewMockStorage(ctrl)

	gomock.InOrder(
		st.EXPECT().List(gomock.Any(), "survival/", "").Return(&storage.Page{
			Objects: []storage.Object{
				{Key: "survival/", Size: 0},
				{Key: "survival/World.vcdbs", Size: 100},
				{Key: "survival/Backups/", Size: 0},
			},
			NextToken: "t1",
		}, nil),
		st.EXPECT().List(gomock.Any(), "survival/", "t1").Return(&storage.Page{
			Objects: []storage.Object{
				{Key: "survival/Backups/old.vcdbs", Size: 40},
				{Key: "survival/saves/world1.dat", Size: 50},
			},
		}, nil),
	)

	listing, err := NewLister(st, nil).List(context.Background(), "/survival/")
	require.NoError(t, err)
	assert.Equal(t, Snapshot{
		"World.vcdbs":       100,
		"Backups/old.vcdbs": 40,
		"saves/world1.dat":  50,
	}, listing.Files)
	key, ok := listing.Key("saves/world1.dat")
	assert.True(t, ok)
	assert.Equal(t, "survival/saves/world1.dat", key)
}

func TestList_PageFailureAbortsWholeListing(t *testing.T) {
	ctrl := gomock.NewController(t)
	st := storage.NewMockStorage(ctrl)

	boom := errors.New("connection reset")
	gomock.InOrder(
		st.EXPECT().List(gomock.Any(), "ns/", "").Return(&storage.Page{
			Objects:   []storage.Object{{Key: "ns/a.vcdbs", Size: 1}},
			NextToken: "t1",
		}, nil),
		st.EXPECT().List(gomock.Any(), "ns/", "t1").Return(nil, boom),
	)

	listing, err := NewLister(st, nil).List(context.Background(), "ns")
	require.Error(t, err)
	assert.Nil(t, listing)
	assert.ErrorIs(t, err, cserrors.ErrTransport)
	assert.ErrorIs(t, err, boom)
}

func TestList_SkipsUnsafeKeys(t *testing.T) {
	ctrl := gomock.NewController(t)
	st := storage.NewMockStorage(ctrl)

	st.EXPECT().List(gomock.Any(), "ns/", "").Return(&storage.Page{
		Objects: []storage.Object{
			{Key: "ns/../escape.vcdbs", Size: 1},
			{Key: "ns//abs.vcdbs", Size: 1},
			{Key: "other/file.vcdbs", Size: 1},
			{Key: "ns/ok.vcdbs", Size: 2},
		},
	}, nil)

	listing, err := NewLister(st, nil).List(context.Background(), "ns")
	require.NoError(t, err)
	assert.Equal(t, Snapshot{"ok.vcdbs": 2}, listing.Files)
}

func TestList_RepeatedTokenFails(t *testing.T) {
	ctrl := gomock.NewController(t)
	st := storage.NewMockStorage(ctrl)

	st.EXPECT().List(gomock.Any(), "ns/", "").Return(&storage.Page{NextToken: "same"}, nil)
	st.EXPECT().List(gomock.Any(), "ns/", "same").Return(&storage.Page{NextToken: "same"}, nil)

	_, err := NewLister(st, nil).List(context.Background(), "ns")
	assert.ErrorIs(t, err, cserrors.ErrTransport)
}

func TestList_EmptyPrefixListsBucket(t *testing.T) {
	ctrl := gomock.NewController(t)
	st := storage.NewMockStorage(ctrl)

	st.EXPECT().List(gomock.Any(), "", "").Return(&storage.Page{
		Objects: []storage.Object{{Key: "World.vcdbs", Size: 3}},
	}, nil)

	listing, err := NewLister(st, nil).List(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, Snapshot{"World.vcdbs": 3}, listing.Files)
}

func TestList_KeepsListedKeyForNonCanonicalPaths(t *testing.T) {
	ctrl := gomock.NewController(t)
	st := storage.NewMockStorage(ctrl)

	nfd := "ns/Cafe\u0301.vcdbs"
	st.EXPECT().List(gomock.Any(), "ns/", "").Return(&storage.Page{
		Objects: []storage.Object{
			{Key: "ns/./world2.vcdbs", Size: 2},
			{Key: nfd, Size: 4},
			{Key: "ns/sub//world.vcdbs", Size: 3},
			{Key: "ns/sub/world.vcdbs", Size: 9},
		},
	}, nil)

	listing, err := NewLister(st, nil).List(context.Background(), "ns")
	require.NoError(t, err)
	assert.Equal(t, Snapshot{
		"world2.vcdbs":    2,
		"Caf\u00e9.vcdbs": 4,
		"sub/world.vcdbs": 3,
	}, listing.Files)
	assert.Equal(t, map[string]string{
		"world2.vcdbs":    "ns/./world2.vcdbs",
		"Caf\u00e9.vcdbs": nfd,
		"sub/world.vcdbs": "ns/sub//world.vcdbs",
	}, listing.Keys)
}
