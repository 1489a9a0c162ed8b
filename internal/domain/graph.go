package domain

import (
	"time"

	"github.com/google/uuid"
)

// Project — проект, которому принадлежат графы, blobs и модели.
type Project struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// Graph — граф (dag), созданный из одного описания pipeline.
//
// Создаётся один раз на каждую отправку описания и после создания
// не меняется, кроме привязки отчёта.
type Graph struct {
	// ID — уникальный идентификатор графа.
	ID uuid.UUID `json:"id"`

	// Name — имя из info.name.
	Name string `json:"name"`

	// Config — сериализованное описание pipeline (YAML).
	Config string `json:"config"`

	// ProjectID — проект-владелец.
	ProjectID uuid.UUID `json:"project_id"`

	// DockerImage — образ контейнера из info.docker_img.
	DockerImage string `json:"docker_img,omitempty"`

	// Kind — Standard или Pipe.
	Kind GraphKind `json:"kind"`

	// ReportID — отчёт графа, если в info указан report.
	ReportID *uuid.UUID `json:"report_id,omitempty"`

	// CreatedAt — время создания.
	CreatedAt time.Time `json:"created_at"`
}

// Edge — зависимость node от другого node того же графа.
type Edge struct {
	NodeID      uuid.UUID `json:"node_id"`
	DependsOnID uuid.UUID `json:"depends_on_id"`
}

// Report — запись отчёта. Конфигурация хранит непрозрачную раскладку
// из реестра report layouts.
type Report struct {
	ID        uuid.UUID      `json:"id"`
	Name      string         `json:"name"`
	ProjectID uuid.UUID      `json:"project_id"`
	Config    map[string]any `json:"config"`
	CreatedAt time.Time      `json:"created_at"`
}

// Model — обученная модель проекта, привязанная к pipe-графу.
type Model struct {
	ID              uuid.UUID  `json:"id"`
	Name            string     `json:"name"`
	ProjectID       uuid.UUID  `json:"project_id"`
	GraphID         *uuid.UUID `json:"dag_id,omitempty"`
	Interface       string     `json:"interface,omitempty"`
	InterfaceParams string     `json:"interface_params,omitempty"`
	Slot            string     `json:"slot,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}
