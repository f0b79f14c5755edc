package main

import (
	"sort"

	"planet-defense/internal/encounter"
)

// sceneObject is what the client needs to draw one renderable.
type sceneObject struct {
	kind   encounter.RenderKind
	pos    encounter.Vec3
	orient encounter.Quat
}

// sceneTracker is the Renderer the encounter core draws into. It keeps the
// server-side copy of the scene that is broadcast to the client.
type sceneTracker struct {
	next    encounter.Handle
	objects map[encounter.Handle]*sceneObject
	blips   []encounter.Blip
}

func newSceneTracker() *sceneTracker {
	return &sceneTracker{objects: make(map[encounter.Handle]*sceneObject)}
}

func (s *sceneTracker) SpawnRenderable(kind encounter.RenderKind, pos encounter.Vec3, orient encounter.Quat) encounter.Handle {
	s.next++
	s.objects[s.next] = &sceneObject{kind: kind, pos: pos, orient: orient}
	return s.next
}

func (s *sceneTracker) MoveRenderable(h encounter.Handle, pos encounter.Vec3, orient encounter.Quat) {
	if o, ok := s.objects[h]; ok {
		o.pos = pos
		o.orient = orient
	}
}

func (s *sceneTracker) RemoveRenderable(h encounter.Handle) {
	delete(s.objects, h)
}

// ForwardDirection returns the zero vector for unknown handles, which the
// core treats as unresolved.
func (s *sceneTracker) ForwardDirection(h encounter.Handle) encounter.Vec3 {
	o, ok := s.objects[h]
	if !ok {
		return encounter.Vec3{}
	}
	return o.orient.Rotate(encounter.ForwardAxis)
}

// setBlips keeps the latest minimap markers for the next broadcast.
func (s *sceneTracker) setBlips(blips []encounter.Blip) {
	s.blips = append(s.blips[:0], blips...)
}

func (s *sceneTracker) count(kind encounter.RenderKind) int {
	n := 0
	for _, o := range s.objects {
		if o.kind == kind {
			n++
		}
	}
	return n
}

// objectViews lists every renderable in handle order.
func (s *sceneTracker) objectViews() []ObjectView {
	handles := make([]encounter.Handle, 0, len(s.objects))
	for h := range s.objects {
		handles = append(handles, h)
	}
	sort.Slice(handles, func(i, j int) bool { return handles[i] < handles[j] })

	views := make([]ObjectView, 0, len(handles))
	for _, h := range handles {
		o := s.objects[h]
		views = append(views, ObjectView{
			Handle: uint64(h),
			Kind:   string(o.kind),
			Pos:    vec32(o.pos),
			Rot:    [4]float32{float32(o.orient.V[0]), float32(o.orient.V[1]), float32(o.orient.V[2]), float32(o.orient.W)},
		})
	}
	return views
}

func (s *sceneTracker) blipViews() []BlipView {
	views := make([]BlipView, 0, len(s.blips))
	for _, b := range s.blips {
		views = append(views, BlipView{ID: uint64(b.ID), Team: b.Team.String(), Pos: vec32(b.Pos)})
	}
	return views
}

func vec32(v encounter.Vec3) [3]float32 {
	return [3]float32{float32(v[0]), float32(v[1]), float32(v[2])}
}
