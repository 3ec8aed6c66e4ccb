package pd

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestQueue_InsertAndFindByComID(t *testing.T) {
	t.Parallel()
	q := &Queue{}
	dst := net.ParseIP("239.0.0.1")
	e := newElement(Addr{ComID: 100, DstIP: dst})
	q.Insert(e)
	require.Same(t, e, q.FindByComID(100, dst))
	require.Nil(t, q.FindByComID(101, dst))
}

func TestQueue_RemoveUnlinksElement(t *testing.T) {
	t.Parallel()
	q := &Queue{}
	e := newElement(Addr{ComID: 1})
	q.Insert(e)
	require.True(t, q.Remove(e))
	require.Equal(t, 0, q.Len())
	require.False(t, q.Remove(e))
}

func TestQueue_SnapshotIsStableDuringMutation(t *testing.T) {
	t.Parallel()
	q := &Queue{}
	e1 := newElement(Addr{ComID: 1})
	e2 := newElement(Addr{ComID: 2})
	q.Insert(e1)
	q.Insert(e2)

	snap := q.Snapshot()
	require.Len(t, snap, 2)
	q.Remove(e1)
	require.Len(t, snap, 2, "snapshot must not be affected by later mutation")
	require.Equal(t, 1, q.Len())
}

func TestQueue_FindBySubAddrWildcardMatchesAnySource(t *testing.T) {
	t.Parallel()
	q := &Queue{}
	e := newElement(Addr{ComID: 5, SrcIP: nil, DstIP: net.IPv4zero})
	q.Insert(e)

	found := q.FindBySubAddr(5, net.ParseIP("10.1.2.3"), net.ParseIP("239.1.1.1"), 0, 0)
	require.Same(t, e, found)
}

func TestQueue_FindBySubAddrRejectsWrongComID(t *testing.T) {
	t.Parallel()
	q := &Queue{}
	e := newElement(Addr{ComID: 5})
	q.Insert(e)
	require.Nil(t, q.FindBySubAddr(6, nil, nil, 0, 0))
}

func TestQueue_FindBySubAddrEnforcesTopologyCounterWhenSet(t *testing.T) {
	t.Parallel()
	q := &Queue{}
	e := newElement(Addr{ComID: 5, EtbTopoCnt: 3})
	q.Insert(e)
	require.Nil(t, q.FindBySubAddr(5, nil, nil, 4, 0))
	require.Same(t, e, q.FindBySubAddr(5, nil, nil, 3, 0))
}
