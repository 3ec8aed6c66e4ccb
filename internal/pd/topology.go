package pd

// validTopology implements §4.T: a frame's topology counter is accepted
// if it is zero (local scope, no topology check wanted) or equals the
// reference counter it is being checked against.
func validTopology(sessionEtb, sessionOpTrn, frameEtb, frameOpTrn uint32) bool {
	etbOK := frameEtb == 0 || frameEtb == sessionEtb
	opTrnOK := frameOpTrn == 0 || frameOpTrn == sessionOpTrn
	return etbOK && opTrnOK
}
