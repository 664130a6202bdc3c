// Package grid генерирует и проверяет сетки бинго-карточек 5×5.
//
// Столбец c содержит пять различных чисел из диапазона [15c+1, 15c+15],
// центральная клетка (2, 2) всегда равна 0.
package grid

import "math/rand/v2"

const (
	// Size задаёт сторону сетки.
	Size = 5
	// ColumnSpan задаёт количество допустимых чисел в столбце.
	ColumnSpan = 15

	centerRow = 2
	centerCol = 2
)

// Grid описывает сетку карточки, индексируется как grid[row][col].
type Grid [][]int

// Generate создаёт корректную сетку, используя глобальный генератор случайных чисел.
func Generate() Grid {
	return generate(rand.IntN)
}

// GenerateWith создаёт корректную сетку на переданном генераторе.
// *rand.Rand не потокобезопасен, вызывающий отвечает за синхронизацию.
func GenerateWith(r *rand.Rand) Grid {
	return generate(r.IntN)
}

func generate(intN func(int) int) Grid {
	g := make(Grid, Size)
	for row := range g {
		g[row] = make([]int, Size)
	}

	for col := 0; col < Size; col++ {
		low, _ := ColumnRange(col)
		seen := make(map[int]struct{}, Size)
		row := 0
		for row < Size {
			n := low + intN(ColumnSpan)
			if _, dup := seen[n]; dup {
				continue
			}
			seen[n] = struct{}{}
			g[row][col] = n
			row++
		}
	}

	g[centerRow][centerCol] = 0
	return g
}

// ColumnRange возвращает допустимый диапазон [low, high] для столбца.
func ColumnRange(col int) (int, int) {
	low := col*ColumnSpan + 1
	return low, low + ColumnSpan - 1
}

// Validate сообщает, удовлетворяет ли сетка правилам столбцов.
// Сетка неправильной формы считается некорректной, паники не происходит.
func Validate(g Grid) bool {
	if len(g) != Size {
		return false
	}
	for _, row := range g {
		if len(row) != Size {
			return false
		}
	}

	for col := 0; col < Size; col++ {
		low, high := ColumnRange(col)
		seen := make(map[int]struct{}, Size)
		for row := 0; row < Size; row++ {
			n := g[row][col]
			if row == centerRow && col == centerCol {
				if n != 0 {
					return false
				}
				continue
			}
			if n < low || n > high {
				return false
			}
			if _, dup := seen[n]; dup {
				return false
			}
			seen[n] = struct{}{}
		}
	}

	return true
}

// Flatten раскладывает сетку построчно в плоский срез.
func Flatten(g Grid) []int {
	flat := make([]int, 0, len(g)*Size)
	for _, row := range g {
		flat = append(flat, row...)
	}
	return flat
}

// Expand собирает сетку из плоского среза построчно. Неполная последняя строка
// остаётся короткой, что делает такую сетку некорректной для Validate.
func Expand(flat []int, size int) Grid {
	if size <= 0 {
		size = Size
	}
	g := make(Grid, 0, size)
	for r := 0; r < size; r++ {
		start := r * size
		if start >= len(flat) {
			g = append(g, []int{})
			continue
		}
		end := min(start+size, len(flat))
		row := make([]int, end-start)
		copy(row, flat[start:end])
		g = append(g, row)
	}
	return g
}
