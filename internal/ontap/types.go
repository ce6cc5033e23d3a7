package ontap

// Destination identifies where a volume should be moved. At least one of
// Node or Aggregate must be set; when both are set the aggregate wins
// because it is the more specific placement.
type Destination struct {
	Node      string
	Aggregate string
}

// Specified reports whether the destination names a node or an aggregate.
func (d Destination) Specified() bool {
	return d.Node != "" || d.Aggregate != ""
}

func (d Destination) String() string {
	if d.Aggregate != "" {
		return "aggregate " + d.Aggregate
	}
	if d.Node != "" {
		return "node " + d.Node
	}
	return "unspecified"
}

// VolumeInfo contains cluster-side details for a volume.
type VolumeInfo struct {
	Name      string
	UUID      string
	SVM       string
	Aggregate string
	SizeBytes int64
}

// MoveState is the cluster-reported state of a volume move.
type MoveState string

// Move states as reported by the ONTAP volume-moves endpoint.
const (
	MoveStateQueued      MoveState = "queued"
	MoveStateReplicating MoveState = "replicating"
	MoveStateCutoverWait MoveState = "cutover_wait"
	MoveStateCutover     MoveState = "cutover"
	MoveStateSuccess     MoveState = "success"
	MoveStateFailed      MoveState = "failed"
	MoveStateAborted     MoveState = "aborted"
)

// Terminal reports whether the move has finished, one way or another.
func (s MoveState) Terminal() bool {
	return s == MoveStateSuccess || s == MoveStateFailed || s == MoveStateAborted
}

// MoveStatus is a snapshot of one volume move on the cluster.
type MoveStatus struct {
	UUID            string
	Volume          string
	State           MoveState
	PercentComplete int
	Message         string
}
