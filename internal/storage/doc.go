// Package storage хранит дерево файлов проекта для каждого графа и
// восстанавливает его на воркере.
//
// Включает:
//   - snapshot.go     — снимок каталога проекта: blobs, манифест, библиотеки
//   - requirements.go — поиск объявленных библиотек (requirements.txt, go.mod)
//   - materialize.go  — восстановление рабочего пространства node
//   - provision.go    — установка недостающих библиотек
//
// Blobs дедуплицируются по sha256 содержимого в пределах проекта.
// Манифест всегда принадлежит графу, даже когда blobs общие.
package storage
