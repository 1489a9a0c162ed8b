package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Machine — машина флота (computer).
//
// Имя — уникальная идентичность машины (обычно hostname).
// Запись обновляется по имени при каждом старте supervisor'а.
type Machine struct {
	Name string `json:"name"`

	// GPU — количество ускорителей.
	GPU int `json:"gpu"`

	// CPU — количество логических ядер.
	CPU int `json:"cpu"`

	// Memory и Disk — объём в байтах.
	Memory uint64 `json:"memory"`
	Disk   uint64 `json:"disk"`

	IP   string `json:"ip"`
	Port int    `json:"port"`

	// User — владелец процесса supervisor'а.
	User string `json:"user"`

	// Usage — последнее снятое значение утилизации ("current usage").
	Usage *Usage `json:"usage,omitempty"`

	LastSynced *time.Time `json:"last_synced,omitempty"`
}

// Container — идентичность контейнера (docker) на машине.
// Уникальна по паре (Name, Machine).
type Container struct {
	Name         string    `json:"name"`
	Machine      string    `json:"computer"`
	Ports        PortRange `json:"ports"`
	LastActivity time.Time `json:"last_activity"`
}

// UsageSample — агрегированная запись утилизации за один цикл сэмплирования.
// Таблица только дописывается.
type UsageSample struct {
	ID      uuid.UUID `json:"id"`
	Machine string    `json:"computer"`
	Usage   Usage     `json:"usage"`
	Time    time.Time `json:"time"`
}

// Usage — утилизация машины в процентах.
type Usage struct {
	CPU    float64    `json:"cpu"`
	Memory float64    `json:"memory"`
	Disk   float64    `json:"disk"`
	GPU    []GPUUsage `json:"gpu"`
}

// GPUUsage — утилизация одного ускорителя в процентах.
type GPUUsage struct {
	Memory float64 `json:"memory"`
	Load   float64 `json:"load"`
}

// MeanUsage усредняет пачку замеров поэлементно.
//
// GPU усредняются по индексу: если в части замеров ускорителей меньше,
// среднее по индексу считается только по замерам, где он присутствует.
func MeanUsage(samples []Usage) Usage {
	var mean Usage
	if len(samples) == 0 {
		return mean
	}

	var gpuSum []GPUUsage
	var gpuCount []int

	for _, s := range samples {
		mean.CPU += s.CPU
		mean.Memory += s.Memory
		mean.Disk += s.Disk

		for i, g := range s.GPU {
			if i >= len(gpuSum) {
				gpuSum = append(gpuSum, GPUUsage{})
				gpuCount = append(gpuCount, 0)
			}
			gpuSum[i].Memory += g.Memory
			gpuSum[i].Load += g.Load
			gpuCount[i]++
		}
	}

	n := float64(len(samples))
	mean.CPU /= n
	mean.Memory /= n
	mean.Disk /= n

	mean.GPU = make([]GPUUsage, len(gpuSum))
	for i := range gpuSum {
		c := float64(gpuCount[i])
		mean.GPU[i] = GPUUsage{
			Memory: gpuSum[i].Memory / c,
			Load:   gpuSum[i].Load / c,
		}
	}

	return mean
}

// PortRange — диапазон портов master-процессов ("low-high").
type PortRange struct {
	Low  int `json:"low"`
	High int `json:"high"`
}

// String возвращает диапазон в формате "low-high".
func (r PortRange) String() string {
	return fmt.Sprintf("%d-%d", r.Low, r.High)
}

// ParsePortRange парсит строку "low-high".
func ParsePortRange(s string) (PortRange, error) {
	low, high, ok := strings.Cut(strings.TrimSpace(s), "-")
	if !ok {
		return PortRange{}, fmt.Errorf("port range %q: expected low-high", s)
	}

	l, err := strconv.Atoi(strings.TrimSpace(low))
	if err != nil {
		return PortRange{}, fmt.Errorf("port range %q: low: %w", s, err)
	}
	h, err := strconv.Atoi(strings.TrimSpace(high))
	if err != nil {
		return PortRange{}, fmt.Errorf("port range %q: high: %w", s, err)
	}
	if l <= 0 || h > 65535 || l > h {
		return PortRange{}, fmt.Errorf("port range %q: out of bounds", s)
	}

	return PortRange{Low: l, High: h}, nil
}
