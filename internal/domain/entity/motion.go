package entity

// MotionArea область кадра, в которой обнаружено движение
type MotionArea struct {
	X      int // координата X левого верхнего угла
	Y      int // координата Y левого верхнего угла
	Width  int // ширина области в пикселях
	Height int // высота области в пикселях
	Area   int // площадь области в пикселях
}

// Center возвращает координаты центра области
func (a MotionArea) Center() (x, y int) {
	return a.X + a.Width/2, a.Y + a.Height/2
}

// MotionSample результат сравнения кадра с предыдущим
type MotionSample struct {
	Score  float64      // доля изменившихся пикселей, от 0 до 1
	Areas  []MotionArea // области движения, если детектор их выделяет
	Width  int
	Height int
}
