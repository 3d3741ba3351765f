package receipt

// ItemRect is the on-screen extent of one rendered message.
type ItemRect struct {
	ID     string
	Top    float64
	Bottom float64
}

// Viewport describes the scroll container at the time of a scroll event. Container and item
// coordinates share one reference frame.
type Viewport struct {
	ScrollTop       float64
	ScrollHeight    float64
	ClientHeight    float64
	ContainerTop    float64
	ContainerBottom float64
	Items           []ItemRect
}

func (v Viewport) DistanceFromBottom() float64 {
	return v.ScrollHeight - v.ScrollTop - v.ClientHeight
}

func (v Viewport) IsAtBottom(threshold float64) bool {
	return v.DistanceFromBottom() < threshold
}

// VisibleIDs returns items lying inside the container widened by tolerance on both edges.
func (v Viewport) VisibleIDs(tolerance float64) []string {
	var ids []string
	for _, it := range v.Items {
		if it.Top >= v.ContainerTop-tolerance && it.Bottom <= v.ContainerBottom+tolerance {
			ids = append(ids, it.ID)
		}
	}
	return ids
}
