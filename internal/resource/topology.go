package resource

// BuildTopology nests a snapshot for the dashboard: each node gains a
// "devices" list, each device gains "senders" and "receivers", and each
// sender carries its flow under "flow" (null when the flow is unknown).
//
// Records are copied; the snapshot is not modified. Devices, senders and
// receivers whose parent is missing are left out.
func BuildTopology(snap Snapshot) []Resource {
	flows := make(map[string]Resource, len(snap.Flows))
	for _, f := range snap.Flows {
		flows[f.ID()] = f
	}

	sendersByDevice := make(map[string][]Resource)
	for _, s := range snap.Senders {
		view := s.Clone()
		if f, ok := flows[s.FlowID()]; ok {
			view["flow"] = f.Clone()
		} else {
			view["flow"] = nil
		}
		sendersByDevice[s.DeviceID()] = append(sendersByDevice[s.DeviceID()], view)
	}

	receiversByDevice := make(map[string][]Resource)
	for _, r := range snap.Receivers {
		receiversByDevice[r.DeviceID()] = append(receiversByDevice[r.DeviceID()], r.Clone())
	}

	devicesByNode := make(map[string][]Resource)
	for _, d := range snap.Devices {
		view := d.Clone()
		view["senders"] = orEmpty(sendersByDevice[d.ID()])
		view["receivers"] = orEmpty(receiversByDevice[d.ID()])
		devicesByNode[d.NodeID()] = append(devicesByNode[d.NodeID()], view)
	}

	out := make([]Resource, 0, len(snap.Nodes))
	for _, n := range snap.Nodes {
		view := n.Clone()
		view["devices"] = orEmpty(devicesByNode[n.ID()])
		out = append(out, view)
	}
	return out
}

func orEmpty(list []Resource) []Resource {
	if list == nil {
		return []Resource{}
	}
	return list
}
